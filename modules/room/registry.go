package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds the retries Create makes before giving up on a
// free code.
const DefaultMaxAttempts = 64

// HistoryWriter receives a room's history writes in the order they are made.
// Implementations must not block.
type HistoryWriter interface {
	Append(msg domain.Message)
	Purge(code string)
}

// Observer is told about lifecycle transitions after they have been applied.
type Observer interface {
	RoomCreated(code string, at time.Time)
	RoomClosed(code, reason string, at time.Time)
	MemberJoined(code, name string, members int, at time.Time)
	MemberLeft(code, name string, members int, at time.Time)
	MessagePosted(msg domain.Message)
}

// RegistryConfig configures a Registry. Zero values fall back to defaults.
type RegistryConfig struct {
	History HistoryWriter
	// Hub is told when a room closes so attached connections are notified.
	Hub         Broadcaster
	Observer    Observer
	MaxAttempts int
	// Generate overrides the random code source.
	Generate func() string
	Now      func() time.Time
}

// roomState is the mutable state of one live room. Every field is guarded by mu.
type roomState struct {
	mu        sync.Mutex
	code      string
	members   int
	closed    bool
	createdAt time.Time
	seq       uint64
	lastStamp time.Time
}

// Registry is the authoritative map from room code to live room.
//
// The map itself is guarded by mu. Membership and message ordering are
// serialized per room by roomState.mu. The two locks are never held together.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*roomState
	generate    func() string
	maxAttempts int
	history     HistoryWriter
	hub         Broadcaster
	observer    Observer
	now         func() time.Time
	logger      types.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig, logger types.Logger) (*Registry, error) {
	generate := cfg.Generate
	if generate == nil {
		gen, err := NewCodeGenerator()
		if err != nil {
			return nil, fmt.Errorf("failed to create code generator: %w", err)
		}
		generate = gen
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.History == nil {
		cfg.History = discardHistory{}
	}
	if cfg.Hub == nil {
		cfg.Hub = discardHub{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		rooms:       make(map[string]*roomState),
		generate:    generate,
		maxAttempts: cfg.MaxAttempts,
		history:     cfg.History,
		hub:         cfg.Hub,
		observer:    cfg.Observer,
		now:         cfg.Now,
		logger:      logger,
	}, nil
}

// Create allocates a fresh code and inserts an empty room under it.
func (r *Registry) Create() (string, error) {
	r.mu.Lock()
	if len(r.rooms) >= CodeSpace {
		r.mu.Unlock()
		return "", fmt.Errorf("create room: %w", domain.ErrResourceExhausted)
	}
	var st *roomState
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		code := r.generate()
		if _, taken := r.rooms[code]; taken {
			continue
		}
		st = &roomState{code: code, createdAt: r.now()}
		r.rooms[code] = st
		break
	}
	r.mu.Unlock()

	if st == nil {
		r.logger.Error("Room code allocation failed", "attempts", r.maxAttempts)
		return "", fmt.Errorf("create room after %d attempts: %w", r.maxAttempts, domain.ErrResourceExhausted)
	}

	r.logger.Info("Room created", "code", st.code)
	r.observer.RoomCreated(st.code, st.createdAt)
	return st.code, nil
}

// Exists reports whether code names a live room.
func (r *Registry) Exists(code string) bool {
	st, ok := r.get(code)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.closed
}

// Lookup returns a snapshot of the room named by code.
func (r *Registry) Lookup(code string) (domain.Info, bool) {
	st, ok := r.get(code)
	if !ok {
		return domain.Info{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return domain.Info{}, false
	}
	return domain.Info{Code: st.code, Members: st.members, CreatedAt: st.createdAt}, true
}

// List returns snapshots of all live rooms ordered by code.
func (r *Registry) List() []domain.Info {
	r.mu.RLock()
	states := make([]*roomState, 0, len(r.rooms))
	for _, st := range r.rooms {
		states = append(states, st)
	}
	r.mu.RUnlock()

	out := make([]domain.Info, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		if !st.closed {
			out = append(out, domain.Info{Code: st.code, Members: st.members, CreatedAt: st.createdAt})
		}
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Delete removes the room and purges its history. Deleting an absent room is
// a no-op.
func (r *Registry) Delete(code string) {
	r.close(code, "deleted")
}

// CloseAll closes every live room with reason and returns their codes.
func (r *Registry) CloseAll(reason string) []string {
	r.mu.RLock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	r.mu.RUnlock()

	closed := make([]string, 0, len(codes))
	for _, code := range codes {
		if r.close(code, reason) {
			closed = append(closed, code)
		}
	}
	sort.Strings(closed)
	return closed
}

func (r *Registry) close(code, reason string) bool {
	st, ok := r.get(code)
	if !ok {
		return false
	}
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return false
	}
	r.closeLocked(st, reason)
	st.mu.Unlock()

	r.finishClose(st, reason)
	return true
}

// ReapIdle deletes rooms that have had no members for longer than grace since
// creation and returns their codes.
func (r *Registry) ReapIdle(grace time.Duration) []string {
	cutoff := r.now().Add(-grace)

	r.mu.RLock()
	candidates := make([]*roomState, 0)
	for _, st := range r.rooms {
		candidates = append(candidates, st)
	}
	r.mu.RUnlock()

	var reaped []string
	for _, st := range candidates {
		st.mu.Lock()
		if st.closed || st.members > 0 || st.createdAt.After(cutoff) {
			st.mu.Unlock()
			continue
		}
		r.closeLocked(st, "idle")
		st.mu.Unlock()

		r.finishClose(st, "idle")
		reaped = append(reaped, st.code)
	}
	sort.Strings(reaped)
	return reaped
}

func (r *Registry) get(code string) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.rooms[code]
	return st, ok
}

// closeLocked marks st closed, queues its history purge behind any pending
// appends and detaches the connections still in the room. Caller holds st.mu,
// so a later room under the same code cannot receive the notice.
func (r *Registry) closeLocked(st *roomState, reason string) {
	st.closed = true
	r.history.Purge(st.code)
	r.hub.CloseRoom(st.code, Encode(KindRoomClosed, RoomClosedPayload{Room: st.code, Reason: reason}))
}

func (st *roomState) isClosed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.closed
}

// finishClose unlinks a closed room from the map.
func (r *Registry) finishClose(st *roomState, reason string) {
	r.mu.Lock()
	if cur, ok := r.rooms[st.code]; ok && cur == st {
		delete(r.rooms, st.code)
	}
	r.mu.Unlock()

	r.logger.Info("Room closed", "code", st.code, "reason", reason)
	r.observer.RoomClosed(st.code, reason, r.now())
}

// recordLocked builds the next message of st and hands it to the history
// writer. Caller holds st.mu, which makes append order equal broadcast order.
func (r *Registry) recordLocked(st *roomState, sender, content string) domain.Message {
	stamp := r.now()
	if stamp.Before(st.lastStamp) {
		stamp = st.lastStamp
	}
	st.lastStamp = stamp
	st.seq++

	msg := domain.Message{
		ID:        uuid.NewString(),
		RoomCode:  st.code,
		Seq:       st.seq,
		Sender:    sender,
		Content:   content,
		Timestamp: stamp,
	}
	r.history.Append(msg)
	return msg
}

type discardHistory struct{}

func (discardHistory) Append(domain.Message) {}
func (discardHistory) Purge(string)          {}

type discardHub struct{}

func (discardHub) Attach(string, string)    {}
func (discardHub) Detach(string, string)    {}
func (discardHub) ToRoom(string, []byte)    {}
func (discardHub) ToAll([]byte)             {}
func (discardHub) ToConn(string, []byte)    {}
func (discardHub) CloseRoom(string, []byte) {}

type nopObserver struct{}

func (nopObserver) RoomCreated(string, time.Time)               {}
func (nopObserver) RoomClosed(string, string, time.Time)        {}
func (nopObserver) MemberJoined(string, string, int, time.Time) {}
func (nopObserver) MemberLeft(string, string, int, time.Time)   {}
func (nopObserver) MessagePosted(domain.Message)                {}
