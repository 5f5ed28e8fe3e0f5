package lobby

import "time"

// Service names registered by the lobby module.
const (
	ServiceEnter        = "enter-lobby"
	ServiceVerifyTicket = "verify-ticket"
)

// Error codes carried in EnterResponse.
const (
	CodeValidation        = "validation_error"
	CodeRoomNotFound      = "room_not_found"
	CodeResourceExhausted = "resource_exhausted"
	CodeInternal          = "internal_error"
)

// EnterRequest is a lobby form submission.
type EnterRequest struct {
	Name   string `json:"name" form:"name"`
	Code   string `json:"code" form:"code"`
	Action string `json:"action" form:"action"`
}

// EnterResponse carries a ticket, or an error code with the form field it
// concerns.
type EnterResponse struct {
	Code      string    `json:"code,omitempty"`
	Name      string    `json:"name,omitempty"`
	Ticket    string    `json:"ticket,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	ErrorCode string    `json:"error_code,omitempty"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// VerifyTicketRequest asks whether a ticket is valid. With Redeem set a
// valid ticket is also spent, so it cannot be verified that way again.
type VerifyTicketRequest struct {
	Ticket string `json:"ticket"`
	Redeem bool   `json:"redeem,omitempty"`
}

// VerifyTicketResponse describes a valid ticket.
type VerifyTicketResponse struct {
	Valid     bool   `json:"valid"`
	Room      string `json:"room,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
