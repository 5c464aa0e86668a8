// Package config loads server configuration from the environment (with an
// optional .env file for development). Every option has a default except
// the SSO public key URL, which the server cannot run without.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"paintboard/internal/board"
)

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr      string `env:"BIND_ADDR" envDefault:"127.0.0.1:2895"`
	DBURL     string `env:"DB_URL" envDefault:"./data.db"`
	PubkeyURL string `env:"PUBKEY_URL"`

	// Canvas
	Width        int    `env:"BOARD_WIDTH" envDefault:"1000"`
	Height       int    `env:"BOARD_HEIGHT" envDefault:"600"`
	DefaultColor string `env:"DEFAULT_COLOR" envDefault:"#FFFFFF"`

	// Paint admission
	MinInterval time.Duration `env:"MIN_INTERVAL" envDefault:"500ms"`
	PaintBegin  string        `env:"PAINT_BEGIN"` // "15:04" wall clock, optional
	PaintEnd    string        `env:"PAINT_END"`

	// Fan-out
	DeltaFlush      time.Duration `env:"DELTA_FLUSH" envDefault:"250ms"`
	BroadcastBuffer int           `env:"BROADCAST_BUFFER" envDefault:"65536"`

	// Heartbeat
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"20s"`
	PongTimeout  time.Duration `env:"PONG_TIMEOUT" envDefault:"10s"`

	// Durability
	BoardFlush  time.Duration `env:"BOARD_FLUSH" envDefault:"300s"`
	ActionFlush time.Duration `env:"ACTION_FLUSH" envDefault:"480s"`
	ChunkSize   int           `env:"CHUNK_SIZE" envDefault:"600"`

	// Snapshots
	SnapshotLevel int `env:"SNAPSHOT_ZSTD_LEVEL" envDefault:"19"`

	// Monitoring
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Parsed paint window; zero when unset.
	windowSet   bool
	windowBegin time.Duration
	windowEnd   time.Duration

	fill board.Color
}

// Load reads configuration from .env and environment variables.
// Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and resolves derived fields.
func (c *Config) Validate() error {
	if c.PubkeyURL == "" {
		return fmt.Errorf("PUBKEY_URL is required")
	}
	if c.Width < 1 || c.Width > 65535 {
		return fmt.Errorf("BOARD_WIDTH must be 1-65535, got %d", c.Width)
	}
	if c.Height < 1 || c.Height > 65535 {
		return fmt.Errorf("BOARD_HEIGHT must be 1-65535, got %d", c.Height)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("MIN_INTERVAL must be positive, got %s", c.MinInterval)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be > 0, got %d", c.ChunkSize)
	}
	if c.BroadcastBuffer < 1 {
		return fmt.Errorf("BROADCAST_BUFFER must be > 0, got %d", c.BroadcastBuffer)
	}
	if c.SnapshotLevel < 0 || c.SnapshotLevel > 22 {
		return fmt.Errorf("SNAPSHOT_ZSTD_LEVEL must be 0-22, got %d", c.SnapshotLevel)
	}
	if c.PongTimeout >= c.PingInterval {
		return fmt.Errorf("PONG_TIMEOUT (%s) must be shorter than PING_INTERVAL (%s)",
			c.PongTimeout, c.PingInterval)
	}

	fill, err := board.HexToColor(c.DefaultColor)
	if err != nil {
		return fmt.Errorf("DEFAULT_COLOR: %w", err)
	}
	c.fill = fill

	// Paint window: both bounds or neither.
	if (c.PaintBegin == "") != (c.PaintEnd == "") {
		return fmt.Errorf("PAINT_BEGIN and PAINT_END must be set together")
	}
	if c.PaintBegin != "" {
		begin, err := parseClock(c.PaintBegin)
		if err != nil {
			return fmt.Errorf("PAINT_BEGIN: %w", err)
		}
		end, err := parseClock(c.PaintEnd)
		if err != nil {
			return fmt.Errorf("PAINT_END: %w", err)
		}
		if end <= begin {
			return fmt.Errorf("PAINT_END (%s) must be after PAINT_BEGIN (%s)", c.PaintEnd, c.PaintBegin)
		}
		c.windowSet = true
		c.windowBegin = begin
		c.windowEnd = end
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// Fill is the initial color for cells absent from the persistent store.
func (c *Config) Fill() board.Color {
	return c.fill
}

// InPaintWindow reports whether the wall-clock time of day of now falls
// inside the configured paint window. Always true when no window is set.
func (c *Config) InPaintWindow(now time.Time) bool {
	if !c.windowSet {
		return true
	}
	tod := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second
	return tod >= c.windowBegin && tod <= c.windowEnd
}

// parseClock parses "15:04" or "15:04:05" into a duration since midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid wall-clock time %q (want HH:MM or HH:MM:SS)", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// LogConfig logs the effective configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Str("db_url", c.DBURL).
		Str("pubkey_url", c.PubkeyURL).
		Int("width", c.Width).
		Int("height", c.Height).
		Str("default_color", c.DefaultColor).
		Dur("min_interval", c.MinInterval).
		Dur("delta_flush", c.DeltaFlush).
		Dur("ping_interval", c.PingInterval).
		Dur("pong_timeout", c.PongTimeout).
		Dur("board_flush", c.BoardFlush).
		Dur("action_flush", c.ActionFlush).
		Int("chunk_size", c.ChunkSize).
		Int("broadcast_buffer", c.BroadcastBuffer).
		Int("snapshot_zstd_level", c.SnapshotLevel).
		Bool("paint_window", c.windowSet).
		Str("paint_begin", c.PaintBegin).
		Str("paint_end", c.PaintEnd).
		Msg("Configuration loaded")
}
