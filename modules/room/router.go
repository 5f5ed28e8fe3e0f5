package room

import (
	"errors"
	"fmt"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono/pkg/types"
)

// ErrSessionEnded is returned by Dispatch once the session has left its room.
// The transport should close the connection.
var ErrSessionEnded = errors.New("session ended")

// Scope selects which connections receive a broadcast.
type Scope string

// Broadcast scopes.
const (
	ScopeRoom       Scope = "room"
	ScopeGlobal     Scope = "global"
	ScopeOriginator Scope = "originator"
)

// ParseScope parses a scope name, falling back to ScopeRoom.
func ParseScope(s string) Scope {
	switch Scope(s) {
	case ScopeGlobal:
		return ScopeGlobal
	case ScopeOriginator:
		return ScopeOriginator
	default:
		return ScopeRoom
	}
}

// RouterConfig configures event scoping.
type RouterConfig struct {
	// EraserScope is ScopeRoom or ScopeGlobal.
	EraserScope Scope
}

// Router validates inbound events against session state and fans them out.
type Router struct {
	reg     *Registry
	tracker *Tracker
	hub     Broadcaster
	cfg     RouterConfig
	logger  types.Logger
}

// NewRouter creates a Router.
func NewRouter(reg *Registry, tracker *Tracker, hub Broadcaster, cfg RouterConfig, logger types.Logger) *Router {
	if cfg.EraserScope != ScopeGlobal {
		cfg.EraserScope = ScopeRoom
	}
	return &Router{reg: reg, tracker: tracker, hub: hub, cfg: cfg, logger: logger}
}

// Dispatch decodes raw and routes it for sess. Events without a live session
// are dropped. Malformed frames are answered with an error frame to the
// sender only. Once the session's room has closed, Dispatch returns
// ErrSessionEnded.
func (r *Router) Dispatch(sess *Session, raw []byte) error {
	if !sess.live() {
		r.logger.Debug("Dropped event without session", "error", domain.ErrOrphanSession)
		return nil
	}
	if sess.room.isClosed() {
		r.logger.Debug("Dropped event for closed room", "code", sess.RoomCode, "error", domain.ErrOrphanSession)
		return ErrSessionEnded
	}

	ev, err := Decode(raw)
	if err != nil {
		r.reject(sess, err)
		return nil
	}
	return r.Route(sess, ev)
}

// Route delivers an already decoded event.
func (r *Router) Route(sess *Session, ev Inbound) error {
	if !sess.live() {
		r.logger.Debug("Dropped event without session", "error", domain.ErrOrphanSession)
		return nil
	}

	switch e := ev.(type) {
	case ChatEvent:
		r.routeChat(sess, e)
	case DrawEvent:
		if e.Room != sess.RoomCode {
			r.reject(sess, domain.NewValidationError("room", fmt.Sprintf("draw targets room %q outside this session", e.Room)))
			return nil
		}
		r.toRoom(sess, Encode(KindDraw, e.Payload))
	case StartLineEvent:
		if e.Room != "" && e.Room != sess.RoomCode {
			r.reject(sess, domain.NewValidationError("room", fmt.Sprintf("start_line targets room %q outside this session", e.Room)))
			return nil
		}
		r.toRoom(sess, Encode(KindStartLine, e.Payload))
	case EraserEvent:
		frame := Encode(KindToggleEraser, EraserPayload{IsErasing: e.IsErasing})
		if r.cfg.EraserScope == ScopeGlobal {
			r.hub.ToAll(frame)
		} else {
			r.toRoom(sess, frame)
		}
	case ToolEvent:
		r.hub.ToConn(sess.ID, Encode(e.Tool, e.Payload))
	case LeaveEvent:
		if e.Room != "" && e.Room != sess.RoomCode {
			r.logger.Warn("leave_room names a different room", "session_room", sess.RoomCode, "room", e.Room)
		}
		r.tracker.Leave(sess)
		return ErrSessionEnded
	default:
		r.logger.Warn("Unhandled event kind", "kind", ev.Kind())
	}
	return nil
}

// routeChat records the message and broadcasts it under the room lock so the
// history order and delivery order agree.
func (r *Router) routeChat(sess *Session, e ChatEvent) {
	st := sess.room
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		r.logger.Debug("Dropped chat for closed room", "code", st.code, "error", domain.ErrOrphanSession)
		return
	}
	msg := r.reg.recordLocked(st, sess.Name, e.Text)
	r.hub.ToRoom(st.code, EncodeChat(sess.Name+":", e.Text))
	st.mu.Unlock()

	r.reg.observer.MessagePosted(msg)
}

// toRoom broadcasts an unpersisted frame to the session's room.
func (r *Router) toRoom(sess *Session, frame []byte) {
	st := sess.room
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		r.logger.Debug("Dropped event for closed room", "code", st.code, "error", domain.ErrOrphanSession)
		return
	}
	r.hub.ToRoom(st.code, frame)
}

func (r *Router) reject(sess *Session, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		r.hub.ToConn(sess.ID, EncodeError("validation_error", ve.Message))
		return
	}
	r.hub.ToConn(sess.ID, EncodeError("bad_request", err.Error()))
}
