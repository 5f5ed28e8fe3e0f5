// Package reaper periodically removes rooms that were created but never
// joined.
package reaper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// IdleReaper deletes rooms that have stayed empty for longer than grace.
type IdleReaper interface {
	ReapIdle(grace time.Duration) []string
}

// Config holds reaper settings.
type Config struct {
	Interval time.Duration
	Grace    time.Duration
}

// DefaultConfig returns the default reaper configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Grace:    2 * time.Minute,
	}
}

// ReaperModule runs the idle-room sweep in the background.
type ReaperModule struct {
	rooms  IdleReaper
	config Config
	logger types.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once

	sweeps atomic.Int64
	reaped atomic.Int64
}

// Compile-time interface checks.
var _ mono.Module = (*ReaperModule)(nil)
var _ mono.HealthCheckableModule = (*ReaperModule)(nil)

// NewModule creates a new ReaperModule sweeping rooms.
func NewModule(rooms IdleReaper, cfg Config, logger types.Logger) *ReaperModule {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	return &ReaperModule{rooms: rooms, config: cfg, logger: logger}
}

// Name returns the module name.
func (m *ReaperModule) Name() string {
	return "reaper"
}

// Start starts the background sweep.
func (m *ReaperModule) Start(_ context.Context) error {
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	go m.run()

	m.logger.Info("Reaper started", "interval", m.config.Interval, "grace", m.config.Grace)
	return nil
}

func (m *ReaperModule) run() {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep deletes idle rooms once and returns their codes.
func (m *ReaperModule) Sweep() []string {
	codes := m.rooms.ReapIdle(m.config.Grace)
	m.sweeps.Add(1)
	if len(codes) > 0 {
		m.reaped.Add(int64(len(codes)))
		m.logger.Info("Reaped idle rooms", "count", len(codes), "codes", codes)
	}
	return codes
}

// Stop stops the sweep.
func (m *ReaperModule) Stop(ctx context.Context) error {
	if m.stopChan == nil {
		return nil
	}

	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	select {
	case <-m.doneChan:
		m.logger.Info("Reaper stopped", "reaped", m.reaped.Load())
	case <-ctx.Done():
		m.logger.Warn("Reaper shutdown timeout exceeded")
		return ctx.Err()
	}
	return nil
}

// Health returns the health status.
func (m *ReaperModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"sweeps": m.sweeps.Load(),
			"reaped": m.reaped.Load(),
		},
	}
}
