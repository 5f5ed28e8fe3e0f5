package room

import (
	"fmt"
	"strings"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono/pkg/types"
)

// Broadcaster delivers encoded frames to connections. Every method must
// return without waiting on a connection.
type Broadcaster interface {
	Attach(code, connID string)
	Detach(code, connID string)
	ToRoom(code string, frame []byte)
	ToAll(frame []byte)
	ToConn(connID string, frame []byte)
	// CloseRoom sends frame to every connection attached to code and detaches
	// them all.
	CloseRoom(code string, frame []byte)
}

// Tracker owns session lifecycles: joins, leaves and the teardown of rooms
// whose last member left.
type Tracker struct {
	reg    *Registry
	hub    Broadcaster
	logger types.Logger
}

// NewTracker creates a Tracker over reg that announces through hub.
func NewTracker(reg *Registry, hub Broadcaster, logger types.Logger) *Tracker {
	return &Tracker{reg: reg, hub: hub, logger: logger}
}

// Join binds connection connID to room code under name. The joiner is attached
// to the room before the entry notice goes out so it sees its own notice.
func (t *Tracker) Join(code, name, connID string) (*Session, error) {
	return t.JoinWithGreeting(code, name, connID, nil)
}

// JoinWithGreeting is Join with a frame sent to the joiner alone ahead of the
// entry notice. greeting may be nil.
func (t *Tracker) JoinWithGreeting(code, name, connID string, greeting func(*Session) []byte) (*Session, error) {
	code = NormalizeCode(code)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "Please enter a name.")
	}

	st, ok := t.reg.get(code)
	if !ok {
		return nil, fmt.Errorf("join %q: %w", code, domain.ErrRoomNotFound)
	}

	sess := &Session{ID: connID, RoomCode: code, Name: name, room: st}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil, fmt.Errorf("join %q: %w", code, domain.ErrRoomNotFound)
	}
	st.members++
	members := st.members
	t.hub.Attach(code, connID)
	if greeting != nil {
		t.hub.ToConn(connID, greeting(sess))
	}
	msg := t.reg.recordLocked(st, name, domain.EnteredRoom)
	t.hub.ToRoom(code, EncodeChat(name, domain.EnteredRoom))
	st.mu.Unlock()

	t.logger.Info("Member joined", "code", code, "name", name, "members", members)
	t.reg.observer.MemberJoined(code, name, members, msg.Timestamp)
	t.reg.observer.MessagePosted(msg)
	return sess, nil
}

// Leave retires sess and decrements its room. The last leave closes the room.
// Calling Leave again for the same session does nothing.
func (t *Tracker) Leave(sess *Session) {
	if sess == nil || sess.room == nil || !sess.retire() {
		return
	}
	st := sess.room

	st.mu.Lock()
	t.hub.Detach(st.code, sess.ID)
	if st.closed {
		st.mu.Unlock()
		t.logger.Debug("Leave after room closed", "code", st.code, "name", sess.Name)
		return
	}
	if st.members <= 0 {
		t.logger.Warn("Member count underflow clamped", "code", st.code, "name", sess.Name, "members", st.members)
		st.members = 0
	} else {
		st.members--
	}
	members := st.members

	if members == 0 {
		t.reg.closeLocked(st, "empty")
		st.mu.Unlock()

		t.logger.Info("Member left", "code", st.code, "name", sess.Name, "members", 0)
		t.reg.observer.MemberLeft(st.code, sess.Name, 0, t.reg.now())
		t.reg.finishClose(st, "empty")
		return
	}

	msg := t.reg.recordLocked(st, sess.Name, domain.LeftRoom)
	t.hub.ToRoom(st.code, EncodeChat(sess.Name, domain.LeftRoom))
	st.mu.Unlock()

	t.logger.Info("Member left", "code", st.code, "name", sess.Name, "members", members)
	t.reg.observer.MemberLeft(st.code, sess.Name, members, msg.Timestamp)
	t.reg.observer.MessagePosted(msg)
}

// Members returns the member count of a live room.
func (t *Tracker) Members(code string) (int, bool) {
	info, ok := t.reg.Lookup(code)
	return info.Members, ok
}
