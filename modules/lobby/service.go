package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/modules/room"
)

// MaxNameLength bounds display names in characters.
const MaxNameLength = 50

// Lobby actions.
const (
	ActionCreate = "create"
	ActionJoin   = "join"
)

// Entry is a validated lobby submission that has been admitted to a room.
type Entry struct {
	Code      string
	Name      string
	Ticket    string
	SessionID string
	ExpiresAt time.Time
}

// Service turns lobby form submissions into room tickets.
type Service struct {
	rooms   room.RoomPort
	tickets *TicketManager
}

// NewService creates a new lobby Service.
func NewService(rooms room.RoomPort, tickets *TicketManager) *Service {
	return &Service{rooms: rooms, tickets: tickets}
}

// Enter validates a submission, creates or finds the room and issues a ticket.
// Any action other than create joins an existing room.
func (s *Service) Enter(ctx context.Context, name, code, action string) (*Entry, error) {
	name = strings.TrimSpace(name)
	code = room.NormalizeCode(code)
	action = strings.ToLower(strings.TrimSpace(action))

	if name == "" {
		return nil, domain.NewValidationError("name", "Please enter a name.")
	}
	if !utf8.ValidString(name) {
		return nil, domain.NewValidationError("name", "Name contains invalid characters.")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, domain.NewValidationError("name", fmt.Sprintf("Name must be at most %d characters.", MaxNameLength))
	}

	if action == ActionCreate {
		created, err := s.rooms.CreateRoom(ctx)
		if err != nil {
			return nil, err
		}
		code = created
	} else {
		if code == "" {
			return nil, domain.NewValidationError("code", "Please enter a room code.")
		}
		if !room.IsValidCode(code) {
			return nil, fmt.Errorf("join %q: %w", code, domain.ErrRoomNotFound)
		}
		_, found, err := s.rooms.LookupRoom(ctx, code)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("join %q: %w", code, domain.ErrRoomNotFound)
		}
	}

	ticket, claims, err := s.tickets.Issue(code, name)
	if err != nil {
		return nil, fmt.Errorf("failed to issue ticket: %w", err)
	}
	return &Entry{
		Code:      code,
		Name:      name,
		Ticket:    ticket,
		SessionID: claims.SessionID(),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// UserMessage returns the text shown on the lobby form for err.
func UserMessage(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, domain.ErrRoomNotFound):
		return "Room does not exist."
	case errors.Is(err, domain.ErrResourceExhausted):
		return "No room codes are free right now. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Verify validates a ticket.
func (s *Service) Verify(ticket string) (*TicketClaims, error) {
	return s.tickets.Validate(ticket)
}
