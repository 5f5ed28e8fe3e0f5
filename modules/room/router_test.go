package room

import (
	"encoding/json"
	"errors"
	"testing"
)

func setupRoom(t *testing.T, cfg RouterConfig) (*fixture, *Session, *Session) {
	t.Helper()
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ", "ABCD")}, cfg)
	if _, err := f.reg.Create(); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	a := mustJoin(t, f.tracker, "WXYZ", "A", "conn-a")
	b := mustJoin(t, f.tracker, "WXYZ", "B", "conn-b")
	return f, a, b
}

func framesOf(t *testing.T, f *fixture, connID string, kind EventKind) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range f.hub.received(t, connID) {
		if env.Event == kind {
			out = append(out, env)
		}
	}
	return out
}

func TestRouter_ChatIsPersistedThenBroadcast(t *testing.T) {
	f, a, _ := setupRoom(t, RouterConfig{})

	if err := f.router.Dispatch(a, []byte(`{"event":"message","data":{"data":"hello"}}`)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	for _, conn := range []string{"conn-a", "conn-b"} {
		chats := f.hub.chats(t, conn)
		last := chats[len(chats)-1]
		if last.Name != "A:" || last.Message != "hello" {
			t.Errorf("%s last chat = %+v, want {A: hello}", conn, last)
		}
	}

	stored := f.history.list("WXYZ")
	last := stored[len(stored)-1]
	if last.Sender != "A" || last.Content != "hello" {
		t.Errorf("stored message = %+v, want sender A content hello", last)
	}
}

func TestRouter_DrawScopedToRoom(t *testing.T) {
	f, a, _ := setupRoom(t, RouterConfig{})
	// A member of a different room must not see the stroke.
	if _, err := f.reg.Create(); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mustJoin(t, f.tracker, "ABCD", "C", "conn-c")

	raw := `{"event":"draw","data":{"room":"WXYZ","x":10,"y":20,"isErasing":false,"lineColor":"#000","lineWidth":2}}`
	if err := f.router.Dispatch(a, []byte(raw)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	for _, conn := range []string{"conn-a", "conn-b"} {
		draws := framesOf(t, f, conn, KindDraw)
		if len(draws) != 1 {
			t.Fatalf("%s received %d draw frames, want 1", conn, len(draws))
		}
		var body map[string]any
		if err := json.Unmarshal(draws[0].Data, &body); err != nil {
			t.Fatalf("bad draw payload: %v", err)
		}
		if body["x"] != float64(10) || body["lineColor"] != "#000" {
			t.Errorf("%s draw payload = %v, want verbatim stroke", conn, body)
		}
	}
	if got := framesOf(t, f, "conn-c", KindDraw); len(got) != 0 {
		t.Errorf("member of another room received %d draw frames", len(got))
	}
	if got := len(f.history.list("WXYZ")); got != 2 {
		t.Errorf("draw must not be persisted: history length = %d, want 2", got)
	}
}

func TestRouter_MalformedFrameAnswersSenderOnly(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"draw without room", `{"event":"draw","data":{"x":1,"y":2}}`},
		{"draw for other room", `{"event":"draw","data":{"room":"ABCD","x":1}}`},
		{"not json", `{{{`},
		{"unknown event", `{"event":"explode","data":{}}`},
		{"empty message", `{"event":"message","data":{"data":"  "}}`},
		{"eraser without flag", `{"event":"toggle_eraser","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, a, _ := setupRoom(t, RouterConfig{})

			if err := f.router.Dispatch(a, []byte(tt.raw)); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}

			if got := framesOf(t, f, "conn-a", KindError); len(got) != 1 {
				t.Errorf("sender received %d error frames, want 1", len(got))
			}
			if got := framesOf(t, f, "conn-b", KindError); len(got) != 0 {
				t.Errorf("peer received %d error frames, want 0", len(got))
			}
			if got := framesOf(t, f, "conn-b", KindDraw); len(got) != 0 {
				t.Errorf("peer received %d draw frames, want 0", len(got))
			}
		})
	}
}

func TestRouter_StartLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"with room", `{"event":"start_line","data":{"room":"wxyz"}}`},
		{"legacy without room", `{"event":"start_line"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, a, _ := setupRoom(t, RouterConfig{})
			if err := f.router.Dispatch(a, []byte(tt.raw)); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if got := framesOf(t, f, "conn-b", KindStartLine); len(got) != 1 {
				t.Errorf("peer received %d start_line frames, want 1", len(got))
			}
		})
	}
}

func TestRouter_EraserScope(t *testing.T) {
	tests := []struct {
		name      string
		scope     Scope
		otherSees int
	}{
		{"room scoped", ScopeRoom, 0},
		{"global", ScopeGlobal, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, a, _ := setupRoom(t, RouterConfig{EraserScope: tt.scope})
			if _, err := f.reg.Create(); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			mustJoin(t, f.tracker, "ABCD", "C", "conn-c")

			if err := f.router.Dispatch(a, []byte(`{"event":"toggle_eraser","data":{"isErasing":true}}`)); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}

			if got := framesOf(t, f, "conn-b", KindToggleEraser); len(got) != 1 {
				t.Errorf("room peer received %d eraser frames, want 1", len(got))
			}
			if got := framesOf(t, f, "conn-c", KindToggleEraser); len(got) != tt.otherSees {
				t.Errorf("other room received %d eraser frames, want %d", len(got), tt.otherSees)
			}
		})
	}
}

func TestRouter_EraserRebroadcastsOnlyFlag(t *testing.T) {
	f, a, _ := setupRoom(t, RouterConfig{})
	raw := `{"event":"toggle_eraser","data":{"isErasing":true,"room":"QQQQ","script":"<b>x</b>"}}`

	if err := f.router.Dispatch(a, []byte(raw)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got := framesOf(t, f, "conn-b", KindToggleEraser)
	if len(got) != 1 {
		t.Fatalf("received %d eraser frames, want 1", len(got))
	}
	if string(got[0].Data) != `{"isErasing":true}` {
		t.Errorf("eraser data = %s, want {\"isErasing\":true}", got[0].Data)
	}
}

func TestRouter_ToolChangesEchoToOriginator(t *testing.T) {
	for _, kind := range []EventKind{KindChangeColor, KindChangeWidth} {
		t.Run(string(kind), func(t *testing.T) {
			f, a, _ := setupRoom(t, RouterConfig{})
			raw := `{"event":"` + string(kind) + `","data":{"value":"#ff0000","socket_id":"x"}}`

			if err := f.router.Dispatch(a, []byte(raw)); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}

			if got := framesOf(t, f, "conn-a", kind); len(got) != 1 {
				t.Errorf("originator received %d %s frames, want 1", len(got), kind)
			}
			if got := framesOf(t, f, "conn-b", kind); len(got) != 0 {
				t.Errorf("peer received %d %s frames, want 0", len(got), kind)
			}
		})
	}
}

func TestRouter_LeaveRoom(t *testing.T) {
	f, _, b := setupRoom(t, RouterConfig{})

	err := f.router.Dispatch(b, []byte(`{"event":"leave_room","data":{"room":"WXYZ"}}`))
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("Dispatch(leave_room) error = %v, want ErrSessionEnded", err)
	}
	if !b.Retired() {
		t.Error("session should be retired after leave_room")
	}

	// Later frames from the retired session are dropped silently.
	if err := f.router.Dispatch(b, []byte(`{"event":"message","data":{"data":"ghost"}}`)); err != nil {
		t.Fatalf("Dispatch() after leave error = %v", err)
	}
	for _, c := range f.hub.chats(t, "conn-a") {
		if c.Message == "ghost" {
			t.Error("retired session's chat was delivered")
		}
	}
}

func TestRouter_OrphanEventsDropped(t *testing.T) {
	f, _, _ := setupRoom(t, RouterConfig{})
	before := len(f.history.list("WXYZ"))

	if err := f.router.Dispatch(nil, []byte(`{"event":"message","data":{"data":"hi"}}`)); err != nil {
		t.Fatalf("Dispatch(nil) error = %v", err)
	}
	if err := f.router.Dispatch(&Session{ID: "conn-x"}, []byte(`{"event":"message","data":{"data":"hi"}}`)); err != nil {
		t.Fatalf("Dispatch(unbound) error = %v", err)
	}

	if got := len(f.history.list("WXYZ")); got != before {
		t.Errorf("orphan chat was persisted: history length = %d, want %d", got, before)
	}
	if got := f.hub.received(t, "conn-x"); len(got) != 0 {
		t.Errorf("orphan session received %d frames, want 0", len(got))
	}
}

func TestRouter_DeletedRoomDropsEvents(t *testing.T) {
	f, a, _ := setupRoom(t, RouterConfig{})
	f.reg.Delete("WXYZ")

	if err := f.router.Dispatch(a, []byte(`{"event":"message","data":{"data":"late"}}`)); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("Dispatch() error = %v, want ErrSessionEnded", err)
	}
	if got := len(f.history.list("WXYZ")); got != 0 {
		t.Errorf("history length = %d, want 0 after delete", got)
	}
}
