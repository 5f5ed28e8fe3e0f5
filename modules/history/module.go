package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/sketchroom/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Config holds history module settings.
type Config struct {
	Store   StoreConfig
	Writers int
	// Override replaces the configured backend, mainly for tests.
	Override Store
}

// Module persists room history and serves it back for hydration.
type Module struct {
	cfg    Config
	store  Store
	writer *Writer
	reader *Reader
	logger types.Logger

	mu       sync.RWMutex
	eventBus mono.EventBus
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the history module. The writer accepts jobs immediately
// and starts applying them once the module starts.
func NewModule(cfg Config, logger types.Logger) *Module {
	m := &Module{cfg: cfg, logger: logger}
	m.writer = NewWriter(WriterConfig{
		Lanes:     cfg.Writers,
		OnFailure: m.publishFailure,
	}, logger)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "history"
}

// Writer returns the ordered history writer.
func (m *Module) Writer() *Writer {
	return m.writer
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.HistoryWriteFailedV1.ToBase(),
	}
}

func (m *Module) publishFailure(code, operation string, err error) {
	m.mu.RLock()
	bus := m.eventBus
	m.mu.RUnlock()
	if bus == nil {
		return
	}
	event := events.HistoryWriteFailedEvent{
		Code:      code,
		Operation: operation,
		Error:     err.Error(),
		Timestamp: time.Now(),
	}
	if pubErr := events.HistoryWriteFailedV1.Publish(bus, event, nil); pubErr != nil {
		m.logger.Warn("Failed to publish HistoryWriteFailed event", "code", code, "error", pubErr)
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceListMessages,
		json.Unmarshal,
		json.Marshal,
		m.handleListMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListMessages, err)
	}
	m.logger.Info("Registered history services", "services", []string{ServiceListMessages})
	return nil
}

func (m *Module) handleListMessages(ctx context.Context, req ListMessagesRequest, _ *mono.Msg) (ListMessagesResponse, error) {
	if m.reader == nil {
		return ListMessagesResponse{ErrorCode: CodePersistence, Message: "history store not started"}, nil
	}
	messages, err := m.reader.List(ctx, req.Code)
	if err != nil {
		m.logger.Error("History read failed", "code", req.Code, "error", err)
		return ListMessagesResponse{ErrorCode: CodePersistence, Message: err.Error()}, nil
	}
	return ListMessagesResponse{Messages: messages}, nil
}

// Start opens the store, drops history left behind by a previous process and
// starts the writer.
func (m *Module) Start(ctx context.Context) error {
	store := m.cfg.Override
	if store == nil {
		s, err := Open(ctx, m.cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		store = s
	}
	if err := store.Clear(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to clear orphaned history: %w", err)
	}
	m.store = store
	m.writer.Start(store)
	m.reader = NewReader(store, m.writer)

	m.logger.Info("History module started", "backend", m.backend(), "lanes", m.writer.Stats().Lanes)
	return nil
}

// Stop drains queued writes and closes the store.
func (m *Module) Stop(ctx context.Context) error {
	var errs []error
	if err := m.writer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain history writer: %w", err))
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history store: %w", err))
		}
	}

	stats := m.writer.Stats()
	m.logger.Info("History module stopped", "written", stats.Written, "failed", stats.Failed, "pending", stats.Pending)
	return errors.Join(errs...)
}

// Health pings the store.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "history store not initialized",
		}
	}

	stats := m.writer.Stats()
	details := map[string]any{
		"backend": m.backend(),
		"written": stats.Written,
		"failed":  stats.Failed,
		"pending": stats.Pending,
	}
	if m.reader != nil {
		rs := m.reader.Stats()
		details["reads"] = rs.Reads
		details["coalesced_reads"] = rs.Coalesced
	}

	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("history store ping failed: %v", err),
			Details: details,
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

func (m *Module) backend() string {
	if m.cfg.Override != nil {
		return "custom"
	}
	if m.cfg.Store.Backend == "" {
		return BackendSQLite
	}
	return m.cfg.Store.Backend
}
