package room

import "time"

// Message is one entry in a room's chat history. Join and leave notices are
// stored exactly like user chat.
type Message struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"room_code"`
	Seq       uint64    `json:"seq"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Info is a point-in-time view of a live room.
type Info struct {
	Code      string    `json:"code"`
	Members   int       `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Synthetic notice contents.
const (
	EnteredRoom = "has entered the room"
	LeftRoom    = "has left the room"
)
