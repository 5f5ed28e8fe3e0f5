package room

import (
	domain "github.com/example/sketchroom/domain/room"
)

// Service names registered by the room module.
const (
	ServiceCreateRoom = "create-room"
	ServiceLookupRoom = "lookup-room"
	ServiceListRooms  = "list-rooms"
)

// Error codes carried in service responses.
const (
	CodeRoomNotFound      = "room_not_found"
	CodeResourceExhausted = "resource_exhausted"
)

// CreateRoomRequest asks for a new room.
type CreateRoomRequest struct{}

// CreateRoomResponse returns the allocated code or an error code.
type CreateRoomResponse struct {
	Code      string `json:"code,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// LookupRoomRequest asks for a room by code.
type LookupRoomRequest struct {
	Code string `json:"code"`
}

// LookupRoomResponse describes a room if it is live.
type LookupRoomResponse struct {
	Found bool        `json:"found"`
	Room  domain.Info `json:"room"`
}

// ListRoomsRequest asks for all live rooms.
type ListRoomsRequest struct{}

// ListRoomsResponse lists live rooms.
type ListRoomsResponse struct {
	Rooms []domain.Info `json:"rooms"`
}
