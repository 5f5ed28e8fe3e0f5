package lobby

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// LobbyPort is the view other modules have of the lobby.
type LobbyPort interface {
	Enter(ctx context.Context, req EnterRequest) (*EnterResponse, error)
	VerifyTicket(ctx context.Context, ticket string) (*VerifyTicketResponse, error)
	RedeemTicket(ctx context.Context, ticket string) (*VerifyTicketResponse, error)
}

// LobbyAdapter implements LobbyPort using the service container.
type LobbyAdapter struct {
	container mono.ServiceContainer
}

// NewLobbyAdapter creates a new LobbyAdapter.
func NewLobbyAdapter(container mono.ServiceContainer) LobbyPort {
	if container == nil {
		panic("lobby: ServiceContainer is nil")
	}
	return &LobbyAdapter{container: container}
}

// Enter submits the lobby form. A rejected submission is a response with
// ErrorCode set, not an error.
func (a *LobbyAdapter) Enter(ctx context.Context, req EnterRequest) (*EnterResponse, error) {
	var resp EnterResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceEnter,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to enter lobby: %w", err)
	}
	return &resp, nil
}

// VerifyTicket validates a ticket.
func (a *LobbyAdapter) VerifyTicket(ctx context.Context, ticket string) (*VerifyTicketResponse, error) {
	return a.verify(ctx, VerifyTicketRequest{Ticket: ticket})
}

// RedeemTicket validates a ticket and spends it. A second redemption of the
// same ticket comes back invalid.
func (a *LobbyAdapter) RedeemTicket(ctx context.Context, ticket string) (*VerifyTicketResponse, error) {
	return a.verify(ctx, VerifyTicketRequest{Ticket: ticket, Redeem: true})
}

func (a *LobbyAdapter) verify(ctx context.Context, req VerifyTicketRequest) (*VerifyTicketResponse, error) {
	var resp VerifyTicketResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceVerifyTicket,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to verify ticket: %w", err)
	}
	return &resp, nil
}
