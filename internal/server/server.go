// Package server is the live serving plane: the HTTP surface, the WebSocket
// upgrade, and the per-connection protocol state machine that drives the
// paint admission pipeline.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"paintboard/internal/auth"
	"paintboard/internal/board"
	"paintboard/internal/config"
	"paintboard/internal/hub"
	"paintboard/internal/monitoring"
	"paintboard/internal/pace"
)

// Time allowed for a single frame write to the peer.
const writeWait = 5 * time.Second

// Deps is the process-wide shared state, initialized once in bootstrap and
// handed to every connection. No ambient globals.
type Deps struct {
	Board    *board.Board
	Actions  *board.ActionBuffer
	Pace     *pace.Table
	Hub      *hub.Hub
	Verifier *auth.Verifier
}

// Server owns the listener and the set of live connections.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	board    *board.Board
	actions  *board.ActionBuffer
	pace     *pace.Table
	hub      *hub.Hub
	verifier *auth.Verifier

	listener   net.Listener
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started      time.Time
	clientSeq    int64
	activeConns  int64
	shuttingDown int32
}

// New wires a server from its shared dependencies.
func New(cfg *config.Config, logger zerolog.Logger, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		board:    deps.Board,
		actions:  deps.Actions,
		pace:     deps.Pace,
		hub:      deps.Hub,
		verifier: deps.Verifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the listener and begins serving. Non-blocking; Shutdown
// stops it.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener
	s.started = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", monitoring.Handler())

	s.httpServer = &http.Server{
		Handler:        mux,
		MaxHeaderBytes: 1 << 20,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server accept loop error")
		}
	}()

	s.logger.Info().
		Str("addr", s.cfg.Addr).
		Msg("Server listening")
	return nil
}

// Shutdown stops accepting, cancels every live connection and waits for
// them to unwind.
func (s *Server) Shutdown() error {
	s.logger.Info().
		Int64("active_connections", atomic.LoadInt64(&s.activeConns)).
		Msg("Initiating shutdown")

	atomic.StoreInt32(&s.shuttingDown, 1)
	if s.listener != nil {
		s.listener.Close()
	}
	s.cancel()
	s.wg.Wait()

	s.logger.Info().Msg("Shutdown complete")
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("Just paint freely!"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	published, dropped := s.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "ok",
		"uptime_sec":       int64(time.Since(s.started).Seconds()),
		"connections":      atomic.LoadInt64(&s.activeConns),
		"deltas_published": published,
		"deltas_dropped":   dropped,
	})
}

// handleWebSocket upgrades the request and hands the socket to a
// connection handler.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	sock, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Error().Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("WebSocket upgrade failed")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serveConn(s.ctx, sock)
	}()
}
