package api

import (
	"time"

	domain "github.com/example/sketchroom/domain/room"
)

// LobbyResponse is returned when a lobby submission is admitted.
type LobbyResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Ticket    string    `json:"ticket"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	WSPath    string    `json:"ws_path"`
}

// LobbyErrorResponse echoes the submitted fields so the form can be shown
// again with the input kept.
type LobbyErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Name    string `json:"name"`
	Code    string `json:"code"`
}

// RoomResponse is the API response for a room lookup.
type RoomResponse struct {
	Code      string    `json:"code"`
	Members   int       `json:"members"`
	Online    int       `json:"online"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomsResponse is the API response for listing live rooms.
type RoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
	Total int            `json:"total"`
}

// HistoryResponse is the API response for room history.
type HistoryResponse struct {
	Code     string           `json:"code"`
	Messages []domain.Message `json:"messages"`
	Total    int              `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Modules map[string]ModuleHealth `json:"modules"`
}

// ModuleHealth is the health of one module.
type ModuleHealth struct {
	Healthy bool           `json:"healthy"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
