package config

import (
	"testing"
	"time"

	"paintboard/internal/board"
)

// valid returns a configuration that passes Validate; tests mutate single
// fields from here.
func valid() *Config {
	return &Config{
		Addr:            "127.0.0.1:2895",
		DBURL:           ":memory:",
		PubkeyURL:       "https://sso.example.com/key",
		Width:           1000,
		Height:          600,
		DefaultColor:    "#FFFFFF",
		MinInterval:     500 * time.Millisecond,
		DeltaFlush:      250 * time.Millisecond,
		BroadcastBuffer: 65536,
		PingInterval:    20 * time.Second,
		PongTimeout:     10 * time.Second,
		BoardFlush:      300 * time.Second,
		ActionFlush:     480 * time.Second,
		ChunkSize:       600,
		SnapshotLevel:   19,
		MetricsInterval: 15 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PUBKEY_URL", "https://sso.example.com/key")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != "127.0.0.1:2895" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Width != 1000 || cfg.Height != 600 {
		t.Errorf("dimensions = %dx%d, want 1000x600", cfg.Width, cfg.Height)
	}
	if cfg.MinInterval != 500*time.Millisecond {
		t.Errorf("MinInterval = %s", cfg.MinInterval)
	}
	if cfg.Fill() != (board.Color{0xFF, 0xFF, 0xFF}) {
		t.Errorf("Fill = %v, want white", cfg.Fill())
	}
	if !cfg.InPaintWindow(time.Now()) {
		t.Error("no window configured but InPaintWindow is false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PUBKEY_URL", "https://sso.example.com/key")
	t.Setenv("BOARD_WIDTH", "200")
	t.Setenv("BOARD_HEIGHT", "100")
	t.Setenv("MIN_INTERVAL", "2s")
	t.Setenv("DEFAULT_COLOR", "#000000")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("dimensions = %dx%d, want 200x100", cfg.Width, cfg.Height)
	}
	if cfg.MinInterval != 2*time.Second {
		t.Errorf("MinInterval = %s, want 2s", cfg.MinInterval)
	}
	if cfg.Fill() != (board.Color{0, 0, 0}) {
		t.Errorf("Fill = %v, want black", cfg.Fill())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing pubkey url", func(c *Config) { c.PubkeyURL = "" }},
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"oversized height", func(c *Config) { c.Height = 70000 }},
		{"non-positive interval", func(c *Config) { c.MinInterval = 0 }},
		{"bad default color", func(c *Config) { c.DefaultColor = "white" }},
		{"pong not shorter than ping", func(c *Config) { c.PongTimeout = c.PingInterval }},
		{"begin without end", func(c *Config) { c.PaintBegin = "08:00" }},
		{"end without begin", func(c *Config) { c.PaintEnd = "20:00" }},
		{"inverted window", func(c *Config) { c.PaintBegin = "20:00"; c.PaintEnd = "08:00" }},
		{"unparseable window", func(c *Config) { c.PaintBegin = "8am"; c.PaintEnd = "8pm" }},
		{"bad zstd level", func(c *Config) { c.SnapshotLevel = 23 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestInPaintWindow(t *testing.T) {
	cfg := valid()
	cfg.PaintBegin = "08:00"
	cfg.PaintEnd = "20:30"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	at := func(h, m, s int) time.Time {
		return time.Date(2026, 8, 26, h, m, s, 0, time.Local)
	}
	tests := []struct {
		now  time.Time
		want bool
	}{
		{at(7, 59, 59), false},
		{at(8, 0, 0), true},
		{at(12, 0, 0), true},
		{at(20, 30, 0), true},
		{at(20, 30, 1), false},
		{at(23, 0, 0), false},
	}
	for _, tt := range tests {
		if got := cfg.InPaintWindow(tt.now); got != tt.want {
			t.Errorf("InPaintWindow(%s) = %v, want %v",
				tt.now.Format("15:04:05"), got, tt.want)
		}
	}
}

func TestInPaintWindowSeconds(t *testing.T) {
	cfg := valid()
	cfg.PaintBegin = "08:00:30"
	cfg.PaintEnd = "08:01:30"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	in := time.Date(2026, 8, 26, 8, 1, 0, 0, time.Local)
	out := time.Date(2026, 8, 26, 8, 0, 0, 0, time.Local)
	if !cfg.InPaintWindow(in) {
		t.Error("08:01:00 should be inside the window")
	}
	if cfg.InPaintWindow(out) {
		t.Error("08:00:00 should be outside the window")
	}
}
