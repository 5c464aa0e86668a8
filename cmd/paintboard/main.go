// paintboard is a realtime collaborative pixel canvas server. Clients
// authenticate with SSO-issued tokens over a binary WebSocket protocol,
// paint cells under a per-user interval, and receive every accepted paint
// as a live delta stream; the full canvas is available on demand as a
// zstd-compressed snapshot. The canvas and the paint log are periodically
// reconciled to SQLite.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"paintboard/internal/auth"
	"paintboard/internal/board"
	"paintboard/internal/config"
	"paintboard/internal/hub"
	"paintboard/internal/monitoring"
	"paintboard/internal/pace"
	"paintboard/internal/server"
	"paintboard/internal/store"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		bootLogger := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: "json"})
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	cfg.LogConfig(logger)
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("Runtime configured")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistent store and canvas restore.
	st, err := store.Open(cfg.DBURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	b := board.New(cfg.Width, cfg.Height, cfg.Fill())
	rows, err := st.LoadBoard(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load board")
	}
	restored := 0
	for _, r := range rows {
		if r.X < 0 || r.X >= cfg.Width || r.Y < 0 || r.Y >= cfg.Height {
			continue
		}
		color, err := board.HexToColor(r.Color)
		if err != nil {
			logger.Warn().Str("color", r.Color).Int("x", r.X).Int("y", r.Y).
				Msg("Skipping cell with bad color")
			continue
		}
		b.Set(r.X, r.Y, board.Cell{Color: color, UID: r.UID, Time: r.Time})
		restored++
	}
	logger.Info().Int("cells", restored).Msg("Board restored from store")

	// SSO public key.
	key, err := auth.FetchKey(ctx, cfg.PubkeyURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to fetch public key")
	}
	logger.Info().Str("url", cfg.PubkeyURL).Msg("Public key pinned")

	// Shared state.
	actions := board.NewActionBuffer()
	paceTable := pace.NewTable(cfg.MinInterval)
	defer paceTable.Stop()
	deltaHub := hub.New(cfg.BroadcastBuffer)

	// Durability workers and system monitor.
	var workers sync.WaitGroup
	boardSaver := store.NewBoardSaver(b, st, cfg.BoardFlush, cfg.ChunkSize, logger)
	actionSaver := store.NewActionSaver(actions, st, cfg.ActionFlush, cfg.ChunkSize, logger)
	workers.Add(2)
	go func() { defer workers.Done(); boardSaver.Run(ctx) }()
	go func() { defer workers.Done(); actionSaver.Run(ctx) }()

	if mon := monitoring.NewSysMonitor(logger); mon != nil {
		workers.Add(1)
		go func() { defer workers.Done(); mon.Run(ctx, cfg.MetricsInterval) }()
	}

	srv := server.New(cfg, logger, server.Deps{
		Board:    b,
		Actions:  actions,
		Pace:     paceTable,
		Hub:      deltaHub,
		Verifier: auth.NewVerifier(key),
	})
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	// Cancelling the worker context triggers one final flush of the board
	// diff and the action buffer before exit.
	cancel()
	workers.Wait()
	logger.Info().Msg("Goodbye")
}
