package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Config holds room module settings.
type Config struct {
	EraserScope Scope
}

// Module owns the room registry, the membership tracker and the event router.
type Module struct {
	registry *Registry
	tracker  *Tracker
	router   *Router
	logger   types.Logger

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

// NewModule creates the room module. History writes go to history and frames
// go out through hub.
func NewModule(cfg Config, history HistoryWriter, hub Broadcaster, logger types.Logger) (*Module, error) {
	m := &Module{logger: logger}

	reg, err := NewRegistry(RegistryConfig{
		History:  history,
		Hub:      hub,
		Observer: busObserver{m: m},
	}, logger)
	if err != nil {
		return nil, err
	}
	m.registry = reg
	m.tracker = NewTracker(reg, hub, logger)
	m.router = NewRouter(reg, m.tracker, hub, RouterConfig{EraserScope: cfg.EraserScope}, logger)
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "room"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventBus = bus
}

func (m *Module) bus() mono.EventBus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventBus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomCreatedV1.ToBase(),
		events.RoomClosedV1.ToBase(),
		events.MemberJoinedV1.ToBase(),
		events.MemberLeftV1.ToBase(),
		events.MessagePostedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceCreateRoom,
		json.Unmarshal,
		json.Marshal,
		m.handleCreateRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceLookupRoom,
		json.Unmarshal,
		json.Marshal,
		m.handleLookupRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceLookupRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceListRooms,
		json.Unmarshal,
		json.Marshal,
		m.handleListRooms,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRooms, err)
	}

	m.logger.Info("Registered room services", "services", []string{ServiceCreateRoom, ServiceLookupRoom, ServiceListRooms})
	return nil
}

func (m *Module) handleCreateRoom(_ context.Context, _ CreateRoomRequest, _ *mono.Msg) (CreateRoomResponse, error) {
	code, err := m.registry.Create()
	if err != nil {
		if errors.Is(err, domain.ErrResourceExhausted) {
			return CreateRoomResponse{ErrorCode: CodeResourceExhausted, Message: err.Error()}, nil
		}
		return CreateRoomResponse{}, err
	}
	return CreateRoomResponse{Code: code}, nil
}

func (m *Module) handleLookupRoom(_ context.Context, req LookupRoomRequest, _ *mono.Msg) (LookupRoomResponse, error) {
	info, ok := m.registry.Lookup(NormalizeCode(req.Code))
	return LookupRoomResponse{Found: ok, Room: info}, nil
}

func (m *Module) handleListRooms(_ context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	return ListRoomsResponse{Rooms: m.registry.List()}, nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Room module started", "eraser_scope", m.router.cfg.EraserScope)
	return nil
}

// Stop closes every live room. Their history purges are queued before the
// history module drains its writer, and connections still attached are sent
// room_closed.
func (m *Module) Stop(_ context.Context) error {
	closed := m.registry.CloseAll("shutdown")
	m.logger.Info("Room module stopped", "closed_rooms", len(closed))
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"live_rooms": m.registry.Count(),
		},
	}
}

// Registry returns the room registry.
func (m *Module) Registry() *Registry {
	return m.registry
}

// Join binds a connection to a room, sending greeting to it first. See
// Tracker.JoinWithGreeting.
func (m *Module) Join(code, name, connID string, greeting func(*Session) []byte) (*Session, error) {
	return m.tracker.JoinWithGreeting(code, name, connID, greeting)
}

// Leave retires a session. See Tracker.Leave.
func (m *Module) Leave(sess *Session) {
	m.tracker.Leave(sess)
}

// Dispatch routes one raw client frame. See Router.Dispatch.
func (m *Module) Dispatch(sess *Session, raw []byte) error {
	return m.router.Dispatch(sess, raw)
}
