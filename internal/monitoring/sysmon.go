package monitoring

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// SysMonitor periodically logs process resource usage (CPU, RSS, goroutine
// count). Purely observational; it never feeds back into admission.
type SysMonitor struct {
	proc   *process.Process
	logger zerolog.Logger
}

// NewSysMonitor creates a monitor for the current process. Returns nil if
// the process handle cannot be obtained (monitoring is optional).
func NewSysMonitor(logger zerolog.Logger) *SysMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn().Err(err).Msg("System monitoring disabled")
		return nil
	}
	return &SysMonitor{
		proc:   proc,
		logger: logger.With().Str("component", "sysmon").Logger(),
	}
}

// Run logs a resource line every interval until ctx is cancelled.
func (m *SysMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cpu, _ := m.proc.CPUPercent()
			var rssMB float64
			if mem, err := m.proc.MemoryInfo(); err == nil {
				rssMB = float64(mem.RSS) / (1024 * 1024)
			}
			m.logger.Info().
				Float64("cpu_pct", cpu).
				Float64("rss_mb", rssMB).
				Int("goroutines", runtime.NumGoroutine()).
				Msg("System resources")
		case <-ctx.Done():
			return
		}
	}
}
