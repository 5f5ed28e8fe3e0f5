package broadcast

import (
	"context"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// flushTimeout bounds how long Stop waits for queued frames, such as the
// room_closed notices sent while rooms shut down.
const flushTimeout = 2 * time.Second

// BroadcastModule owns the websocket hub.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
	logger    types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(logger types.Logger) *BroadcastModule {
	return &BroadcastModule{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start starts the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop gives queued frames a moment to drain, then closes every connection
// and waits for the hub to finish.
func (m *BroadcastModule) Stop(ctx context.Context) error {
	clientCount := m.hub.ClientCount()
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	if err := m.hub.Flush(flushCtx); err != nil {
		m.logger.Warn("Stopped with frames still queued", "error", err)
	}
	cancel()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Broadcast module stopped", "clients", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
			"slow_kicked":       m.hub.KickedCount(),
		},
	}
}

// GetHub returns the websocket hub.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}
