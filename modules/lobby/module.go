package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/modules/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// LobbyModule admits people to rooms by issuing signed tickets.
type LobbyModule struct {
	tickets *TicketManager
	service *Service
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*LobbyModule)(nil)
var _ mono.DependentModule = (*LobbyModule)(nil)
var _ mono.ServiceProviderModule = (*LobbyModule)(nil)
var _ mono.HealthCheckableModule = (*LobbyModule)(nil)

// NewModule creates a new LobbyModule.
func NewModule(cfg TicketConfig, logger types.Logger) *LobbyModule {
	return &LobbyModule{
		tickets: NewTicketManager(cfg),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *LobbyModule) Name() string {
	return "lobby"
}

// Dependencies returns the list of module dependencies.
func (m *LobbyModule) Dependencies() []string {
	return []string{"room"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *LobbyModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "room":
		m.service = NewService(room.NewRoomAdapter(container), m.tickets)
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *LobbyModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceEnter,
		json.Unmarshal,
		json.Marshal,
		m.handleEnter,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceEnter, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceVerifyTicket,
		json.Unmarshal,
		json.Marshal,
		m.handleVerifyTicket,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceVerifyTicket, err)
	}

	m.logger.Info("Registered lobby services", "services", []string{ServiceEnter, ServiceVerifyTicket})
	return nil
}

// handleEnter answers lobby submissions. Rejections are returned in the
// response, not as errors, so the form can be shown again.
func (m *LobbyModule) handleEnter(ctx context.Context, req EnterRequest, _ *mono.Msg) (EnterResponse, error) {
	if m.service == nil {
		return EnterResponse{ErrorCode: CodeInternal, Message: "lobby not ready"}, nil
	}

	entry, err := m.service.Enter(ctx, req.Name, req.Code, req.Action)
	if err != nil {
		resp := EnterResponse{Message: UserMessage(err)}
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			resp.ErrorCode = CodeValidation
			resp.Field = ve.Field
		case errors.Is(err, domain.ErrRoomNotFound):
			resp.ErrorCode = CodeRoomNotFound
			resp.Field = "code"
		case errors.Is(err, domain.ErrResourceExhausted):
			resp.ErrorCode = CodeResourceExhausted
		default:
			resp.ErrorCode = CodeInternal
			m.logger.Error("Lobby entry failed", "action", req.Action, "error", err)
		}
		return resp, nil
	}

	m.logger.Info("Lobby entry admitted", "code", entry.Code, "name", entry.Name, "action", req.Action)
	return EnterResponse{
		Code:      entry.Code,
		Name:      entry.Name,
		Ticket:    entry.Ticket,
		SessionID: entry.SessionID,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

func (m *LobbyModule) handleVerifyTicket(_ context.Context, req VerifyTicketRequest, _ *mono.Msg) (VerifyTicketResponse, error) {
	verify := m.tickets.Validate
	if req.Redeem {
		verify = m.tickets.Redeem
	}
	claims, err := verify(req.Ticket)
	if err != nil {
		errMsg := "invalid ticket"
		switch {
		case errors.Is(err, ErrExpiredTicket):
			errMsg = "ticket expired"
		case errors.Is(err, ErrTicketUsed):
			errMsg = "ticket already used"
			m.logger.Warn("Rejected reused ticket")
		}
		return VerifyTicketResponse{Valid: false, Error: errMsg}, nil
	}
	return VerifyTicketResponse{
		Valid:     true,
		Room:      claims.Room,
		Name:      claims.Name,
		SessionID: claims.SessionID(),
	}, nil
}

// Start starts the module.
func (m *LobbyModule) Start(_ context.Context) error {
	m.logger.Info("Lobby module started", "ticket_ttl", m.tickets.TTL())
	return nil
}

// Stop stops the module.
func (m *LobbyModule) Stop(_ context.Context) error {
	m.logger.Info("Lobby module stopped")
	return nil
}

// Health returns the health status.
func (m *LobbyModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "room dependency not wired",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"ticket_ttl":       m.tickets.TTL().String(),
			"redeemed_tickets": m.tickets.Redeemed(),
		},
	}
}
