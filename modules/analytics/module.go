package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/example/sketchroom/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// ServiceStats is the request-reply service returning the current counters.
const ServiceStats = "analytics-stats"

// StatsRequest asks for the current counters.
type StatsRequest struct{}

// AnalyticsModule consumes room events and exposes them as metrics.
type AnalyticsModule struct {
	recorder *Recorder
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*AnalyticsModule)(nil)
var _ mono.EventConsumerModule = (*AnalyticsModule)(nil)
var _ mono.ServiceProviderModule = (*AnalyticsModule)(nil)
var _ mono.HealthCheckableModule = (*AnalyticsModule)(nil)

// NewModule creates a new AnalyticsModule.
func NewModule(logger types.Logger) *AnalyticsModule {
	return &AnalyticsModule{
		recorder: NewRecorder(),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *AnalyticsModule) Name() string {
	return "analytics"
}

// Recorder returns the event recorder.
func (m *AnalyticsModule) Recorder() *Recorder {
	return m.recorder
}

// MetricsHandler serves Prometheus metrics.
func (m *AnalyticsModule) MetricsHandler() http.Handler {
	return m.recorder.Handler()
}

// RegisterEventConsumers registers handlers for room and history events.
func (m *AnalyticsModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomClosedV1, m.handleRoomClosed, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomClosed consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberJoinedV1, m.handleMemberJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberJoined consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberLeftV1, m.handleMemberLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberLeft consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessagePostedV1, m.handleMessagePosted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.HistoryWriteFailedV1, m.handleHistoryWriteFailed, m,
	); err != nil {
		return fmt.Errorf("failed to register HistoryWriteFailed consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{
		"RoomCreated.v1", "RoomClosed.v1", "MemberJoined.v1",
		"MemberLeft.v1", "MessagePosted.v1", "HistoryWriteFailed.v1",
	})
	return nil
}

func (m *AnalyticsModule) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.recorder.RoomCreated(event)
	return nil
}

func (m *AnalyticsModule) handleRoomClosed(_ context.Context, event events.RoomClosedEvent, _ *mono.Msg) error {
	m.recorder.RoomClosed(event)
	return nil
}

func (m *AnalyticsModule) handleMemberJoined(_ context.Context, event events.MemberJoinedEvent, _ *mono.Msg) error {
	m.recorder.MemberJoined(event)
	return nil
}

func (m *AnalyticsModule) handleMemberLeft(_ context.Context, event events.MemberLeftEvent, _ *mono.Msg) error {
	m.recorder.MemberLeft(event)
	return nil
}

func (m *AnalyticsModule) handleMessagePosted(_ context.Context, event events.MessagePostedEvent, _ *mono.Msg) error {
	m.recorder.MessagePosted(event)
	return nil
}

func (m *AnalyticsModule) handleHistoryWriteFailed(_ context.Context, event events.HistoryWriteFailedEvent, _ *mono.Msg) error {
	m.logger.Warn("History write failure reported", "code", event.Code, "operation", event.Operation, "error", event.Error)
	m.recorder.HistoryWriteFailed(event)
	return nil
}

// RegisterServices registers request-reply services in the service container.
func (m *AnalyticsModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceStats,
		json.Unmarshal,
		json.Marshal,
		m.handleStats,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceStats, err)
	}
	return nil
}

func (m *AnalyticsModule) handleStats(_ context.Context, _ StatsRequest, _ *mono.Msg) (Stats, error) {
	return m.recorder.Stats(), nil
}

// Start starts the module.
func (m *AnalyticsModule) Start(_ context.Context) error {
	m.logger.Info("Analytics module started")
	return nil
}

// Stop stops the module.
func (m *AnalyticsModule) Stop(_ context.Context) error {
	stats := m.recorder.Stats()
	m.logger.Info("Analytics module stopped",
		"rooms_created", stats.RoomsCreated,
		"messages_posted", stats.MessagesPosted)
	return nil
}

// Health returns the health status.
func (m *AnalyticsModule) Health(_ context.Context) mono.HealthStatus {
	stats := m.recorder.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"live_rooms":       stats.LiveRooms,
			"online_members":   stats.OnlineMembers,
			"history_failures": stats.HistoryFailures,
		},
	}
}
