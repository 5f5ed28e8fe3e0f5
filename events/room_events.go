package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// RoomCreatedEvent is emitted when the registry allocates a new room.
type RoomCreatedEvent struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomClosedEvent is emitted when a room is removed from the registry.
type RoomClosedEvent struct {
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberJoinedEvent is emitted after a session joins a room.
type MemberJoinedEvent struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Members   int       `json:"members"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberLeftEvent is emitted after a session leaves a room.
type MemberLeftEvent struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Members   int       `json:"members"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagePostedEvent is emitted for every chat or notice message recorded in a room.
type MessagePostedEvent struct {
	MessageID string    `json:"message_id"`
	Code      string    `json:"code"`
	Seq       uint64    `json:"seq"`
	Sender    string    `json:"sender"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryWriteFailedEvent is emitted when a history write or purge fails.
type HistoryWriteFailedEvent struct {
	Code      string    `json:"code"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Room lifecycle event definitions.
var (
	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"room",
		"RoomCreated",
		"v1",
	)

	RoomClosedV1 = helper.EventDefinition[RoomClosedEvent](
		"room",
		"RoomClosed",
		"v1",
	)

	MemberJoinedV1 = helper.EventDefinition[MemberJoinedEvent](
		"room",
		"MemberJoined",
		"v1",
	)

	MemberLeftV1 = helper.EventDefinition[MemberLeftEvent](
		"room",
		"MemberLeft",
		"v1",
	)

	MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
		"room",
		"MessagePosted",
		"v1",
	)
)

// History event definitions.
var (
	HistoryWriteFailedV1 = helper.EventDefinition[HistoryWriteFailedEvent](
		"history",
		"HistoryWriteFailed",
		"v1",
	)
)
