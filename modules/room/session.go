package room

import "sync/atomic"

// Session binds one live connection to one display name in one room.
type Session struct {
	// ID identifies the connection in the Broadcaster.
	ID       string
	RoomCode string
	Name     string

	room    *roomState
	retired atomic.Bool
}

// Retired reports whether the session has already left its room.
func (s *Session) Retired() bool {
	return s.retired.Load()
}

// retire marks the session retired and reports whether this call did so.
func (s *Session) retire() bool {
	return s.retired.CompareAndSwap(false, true)
}

// live reports whether events from s may still be routed.
func (s *Session) live() bool {
	return s != nil && s.room != nil && !s.retired.Load()
}
