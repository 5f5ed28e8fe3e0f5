package history

import (
	domain "github.com/example/sketchroom/domain/room"
)

// ServiceListMessages is the request-reply service that returns a room's history.
const ServiceListMessages = "list-messages"

// CodePersistence marks a response whose store read failed.
const CodePersistence = "persistence_failed"

// ListMessagesRequest asks for the history of one room.
type ListMessagesRequest struct {
	Code string `json:"code"`
}

// ListMessagesResponse carries a room's messages in append order.
type ListMessagesResponse struct {
	Messages  []domain.Message `json:"messages"`
	ErrorCode string           `json:"error_code,omitempty"`
	Message   string           `json:"message,omitempty"`
}
