package room

import "errors"

var (
	// ErrRoomNotFound is returned when a room code does not name a live room.
	ErrRoomNotFound = errors.New("room does not exist")
	// ErrResourceExhausted is returned when no free room code can be allocated.
	ErrResourceExhausted = errors.New("room code space exhausted")
	// ErrPersistence wraps failures writing to or reading from the history store.
	ErrPersistence = errors.New("history persistence failed")
	// ErrOrphanSession marks an event that arrived without a live session.
	ErrOrphanSession = errors.New("event has no bound session")
)

// ValidationError reports bad user input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
