package room

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	domain "github.com/example/sketchroom/domain/room"
)

// MaxMessageLength bounds chat text in bytes.
const MaxMessageLength = 5000

// EventKind names a frame on the realtime wire.
type EventKind string

// Inbound and outbound event kinds.
const (
	KindMessage      EventKind = "message"
	KindDraw         EventKind = "draw"
	KindStartLine    EventKind = "start_line"
	KindToggleEraser EventKind = "toggle_eraser"
	KindChangeColor  EventKind = "change_color"
	KindChangeWidth  EventKind = "change_width"
	KindLeaveRoom    EventKind = "leave_room"
	KindSession      EventKind = "session"
	KindError        EventKind = "error"
	KindRoomClosed   EventKind = "room_closed"
)

// Envelope is the JSON shape of every frame.
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event.
type Inbound interface {
	Kind() EventKind
}

// ChatEvent carries chat text.
type ChatEvent struct {
	Text string
}

// DrawEvent carries one stroke segment for Room. Payload is forwarded verbatim.
type DrawEvent struct {
	Room    string
	Payload json.RawMessage
}

// StartLineEvent marks the start of a stroke. Room is empty for legacy clients.
type StartLineEvent struct {
	Room    string
	Payload json.RawMessage
}

// EraserEvent toggles the eraser tool.
type EraserEvent struct {
	IsErasing bool
}

// ToolEvent is a color or width change echoed to its sender.
type ToolEvent struct {
	Tool    EventKind
	Payload json.RawMessage
}

// LeaveEvent asks to leave the current room.
type LeaveEvent struct {
	Room string
}

func (ChatEvent) Kind() EventKind      { return KindMessage }
func (DrawEvent) Kind() EventKind      { return KindDraw }
func (StartLineEvent) Kind() EventKind { return KindStartLine }
func (EraserEvent) Kind() EventKind    { return KindToggleEraser }
func (e ToolEvent) Kind() EventKind    { return e.Tool }
func (LeaveEvent) Kind() EventKind     { return KindLeaveRoom }

// Decode parses one client frame into its typed event. Failures are
// ValidationErrors naming the offending field.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.NewValidationError("frame", "frame is not a JSON envelope")
	}

	switch env.Event {
	case KindMessage:
		return decodeChat(env.Data)
	case KindDraw:
		room, err := roomField(env.Data)
		if err != nil {
			return nil, err
		}
		if room == "" {
			return nil, domain.NewValidationError("room", "draw requires a room")
		}
		return DrawEvent{Room: NormalizeCode(room), Payload: env.Data}, nil
	case KindStartLine:
		room, err := roomField(env.Data)
		if err != nil {
			return nil, err
		}
		return StartLineEvent{Room: NormalizeCode(room), Payload: env.Data}, nil
	case KindToggleEraser:
		var body struct {
			IsErasing *bool `json:"isErasing"`
		}
		if err := json.Unmarshal(env.Data, &body); err != nil || body.IsErasing == nil {
			return nil, domain.NewValidationError("isErasing", "toggle_eraser requires isErasing")
		}
		return EraserEvent{IsErasing: *body.IsErasing}, nil
	case KindChangeColor, KindChangeWidth:
		if len(bytes.TrimSpace(env.Data)) == 0 {
			return nil, domain.NewValidationError("data", fmt.Sprintf("%s requires a payload", env.Event))
		}
		return ToolEvent{Tool: env.Event, Payload: env.Data}, nil
	case KindLeaveRoom:
		room, err := roomField(env.Data)
		if err != nil {
			return nil, err
		}
		return LeaveEvent{Room: NormalizeCode(room)}, nil
	case "":
		return nil, domain.NewValidationError("event", "frame has no event")
	default:
		return nil, domain.NewValidationError("event", fmt.Sprintf("unknown event %q", env.Event))
	}
}

// decodeChat accepts {"data": "text"} and a bare JSON string.
func decodeChat(data json.RawMessage) (Inbound, error) {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var body struct {
			Data *string `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil || body.Data == nil {
			return nil, domain.NewValidationError("data", "message requires text")
		}
		text = *body.Data
	}
	if err := ValidateMessage(text); err != nil {
		return nil, err
	}
	return ChatEvent{Text: text}, nil
}

// roomField extracts the optional "room" member of an object payload.
func roomField(data json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}
	var body struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", domain.NewValidationError("room", "room must be a string")
	}
	return body.Room, nil
}

// ValidateMessage checks chat text.
func ValidateMessage(text string) error {
	if len(bytes.TrimSpace([]byte(text))) == 0 {
		return domain.NewValidationError("data", "message content cannot be empty")
	}
	if len(text) > MaxMessageLength {
		return domain.NewValidationError("data", "message exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return domain.NewValidationError("data", "message contains invalid characters")
	}
	return nil
}

// ChatPayload is the outbound body of a message frame.
type ChatPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ErrorPayload is the outbound body of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EraserPayload is the outbound body of a toggle_eraser frame.
type EraserPayload struct {
	IsErasing bool `json:"isErasing"`
}

// RoomClosedPayload is sent to connections still attached to a room when it
// closes.
type RoomClosedPayload struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

// SessionPayload is sent to a connection once it has joined.
type SessionPayload struct {
	Room      string `json:"room"`
	Name      string `json:"name"`
	SessionID string `json:"session_id"`
}

// Encode builds a frame of kind around data.
func Encode(kind EventKind, data any) []byte {
	var body json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		body = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			b, _ = json.Marshal(ErrorPayload{Code: "internal", Message: "unencodable payload"})
			kind = KindError
		}
		body = b
	}
	frame, _ := json.Marshal(Envelope{Event: kind, Data: body})
	return frame
}

// EncodeChat builds an outbound message frame.
func EncodeChat(name, message string) []byte {
	return Encode(KindMessage, ChatPayload{Name: name, Message: message})
}

// EncodeError builds an error frame for the originating connection.
func EncodeError(code, message string) []byte {
	return Encode(KindError, ErrorPayload{Code: code, Message: message})
}
