package room

import (
	"encoding/json"
	"sync"
	"testing"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono/pkg/types"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// fakeHub records every frame delivered to every connection.
type fakeHub struct {
	mu     sync.Mutex
	rooms  map[string]map[string]bool
	known  map[string]bool
	frames map[string][][]byte
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		rooms:  make(map[string]map[string]bool),
		known:  make(map[string]bool),
		frames: make(map[string][][]byte),
	}
}

func (h *fakeHub) Attach(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]bool)
	}
	h.rooms[code][connID] = true
	h.known[connID] = true
}

func (h *fakeHub) Detach(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[code], connID)
}

func (h *fakeHub) ToRoom(code string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.rooms[code] {
		h.frames[id] = append(h.frames[id], frame)
	}
}

func (h *fakeHub) ToAll(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.known {
		h.frames[id] = append(h.frames[id], frame)
	}
}

func (h *fakeHub) ToConn(connID string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames[connID] = append(h.frames[connID], frame)
}

func (h *fakeHub) CloseRoom(code string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.rooms[code] {
		h.frames[id] = append(h.frames[id], frame)
	}
	delete(h.rooms, code)
}

// received decodes every frame delivered to connID.
func (h *fakeHub) received(t *testing.T, connID string) []Envelope {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Envelope, 0, len(h.frames[connID]))
	for _, f := range h.frames[connID] {
		var env Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("frame %s is not an envelope: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

// chats returns the message payloads delivered to connID.
func (h *fakeHub) chats(t *testing.T, connID string) []ChatPayload {
	t.Helper()
	var out []ChatPayload
	for _, env := range h.received(t, connID) {
		if env.Event != KindMessage {
			continue
		}
		var p ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("bad chat payload %s: %v", env.Data, err)
		}
		out = append(out, p)
	}
	return out
}

// recordingHistory keeps appends and purges in call order.
type recordingHistory struct {
	mu       sync.Mutex
	messages map[string][]domain.Message
	purged   []string
}

func newRecordingHistory() *recordingHistory {
	return &recordingHistory{messages: make(map[string][]domain.Message)}
}

func (h *recordingHistory) Append(msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[msg.RoomCode] = append(h.messages[msg.RoomCode], msg)
}

func (h *recordingHistory) Purge(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.messages, code)
	h.purged = append(h.purged, code)
}

func (h *recordingHistory) list(code string) []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.messages[code]...)
}

// scriptedCodes returns a generator that yields codes in order, then repeats
// the last one.
func scriptedCodes(codes ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c
	}
}

type fixture struct {
	reg     *Registry
	tracker *Tracker
	router  *Router
	hub     *fakeHub
	history *recordingHistory
}

func newFixture(t *testing.T, cfg RegistryConfig, routerCfg RouterConfig) *fixture {
	t.Helper()
	hub := newFakeHub()
	history := newRecordingHistory()
	cfg.History = history
	cfg.Hub = hub
	reg, err := NewRegistry(cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	tracker := NewTracker(reg, hub, &mockLogger{})
	return &fixture{
		reg:     reg,
		tracker: tracker,
		router:  NewRouter(reg, tracker, hub, routerCfg, &mockLogger{}),
		hub:     hub,
		history: history,
	}
}

func mustJoin(t *testing.T, tr *Tracker, code, name, connID string) *Session {
	t.Helper()
	s, err := tr.Join(code, name, connID)
	if err != nil {
		t.Fatalf("Join(%q, %q) error = %v", code, name, err)
	}
	return s
}
