package room

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// RoomPort is the view other modules have of the room registry.
type RoomPort interface {
	CreateRoom(ctx context.Context) (string, error)
	LookupRoom(ctx context.Context, code string) (domain.Info, bool, error)
	ListRooms(ctx context.Context) ([]domain.Info, error)
}

// RoomAdapter implements RoomPort using the service container.
type RoomAdapter struct {
	container mono.ServiceContainer
}

// NewRoomAdapter creates a new RoomAdapter.
func NewRoomAdapter(container mono.ServiceContainer) RoomPort {
	if container == nil {
		panic("room: ServiceContainer is nil")
	}
	return &RoomAdapter{container: container}
}

// CreateRoom allocates a new room and returns its code.
func (a *RoomAdapter) CreateRoom(ctx context.Context) (string, error) {
	var resp CreateRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCreateRoom,
		json.Marshal,
		json.Unmarshal,
		&CreateRoomRequest{},
		&resp,
	); err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}
	if resp.ErrorCode == CodeResourceExhausted {
		return "", fmt.Errorf("failed to create room: %w", domain.ErrResourceExhausted)
	}
	return resp.Code, nil
}

// LookupRoom returns the room named by code, if live.
func (a *RoomAdapter) LookupRoom(ctx context.Context, code string) (domain.Info, bool, error) {
	req := LookupRoomRequest{Code: code}
	var resp LookupRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceLookupRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.Info{}, false, fmt.Errorf("failed to look up room: %w", err)
	}
	return resp.Room, resp.Found, nil
}

// ListRooms returns all live rooms.
func (a *RoomAdapter) ListRooms(ctx context.Context) ([]domain.Info, error) {
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&ListRoomsRequest{},
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}
