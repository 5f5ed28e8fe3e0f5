package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_CreateJoinChatLeaveScenario(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})

	code, err := f.reg.Create()
	require.NoError(t, err)
	require.Equal(t, "WXYZ", code)

	a := mustJoin(t, f.tracker, code, "A", "conn-a")
	b := mustJoin(t, f.tracker, code, "B", "conn-b")

	require.NoError(t, f.router.Route(a, ChatEvent{Text: "hello"}))

	f.tracker.Leave(b)
	members, ok := f.tracker.Members(code)
	require.True(t, ok)
	assert.Equal(t, 1, members)

	f.tracker.Leave(a)
	assert.False(t, f.reg.Exists(code), "room should be gone once the last member leaves")

	// A saw its own entry, B's entry, its chat and B's exit.
	assert.Equal(t, []ChatPayload{
		{Name: "A", Message: domain.EnteredRoom},
		{Name: "B", Message: domain.EnteredRoom},
		{Name: "A:", Message: "hello"},
		{Name: "B", Message: domain.LeftRoom},
	}, f.hub.chats(t, "conn-a"))

	// B joined after A's entry notice and left before the exit notice.
	assert.Equal(t, []ChatPayload{
		{Name: "B", Message: domain.EnteredRoom},
		{Name: "A:", Message: "hello"},
	}, f.hub.chats(t, "conn-b"))

	assert.Equal(t, []string{code}, f.history.purged)
}

func TestTracker_GreetingPrecedesEntryNotice(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	code, err := f.reg.Create()
	require.NoError(t, err)
	mustJoin(t, f.tracker, code, "A", "conn-a")

	greeting := func(s *Session) []byte {
		return Encode(KindSession, SessionPayload{Room: s.RoomCode, Name: s.Name, SessionID: "jti-b"})
	}
	_, err = f.tracker.JoinWithGreeting(" wxyz ", "  B ", "conn-b", greeting)
	require.NoError(t, err)

	got := f.hub.received(t, "conn-b")
	require.Len(t, got, 2)
	assert.Equal(t, KindSession, got[0].Event)
	assert.Equal(t, KindMessage, got[1].Event)

	var payload SessionPayload
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	assert.Equal(t, SessionPayload{Room: "WXYZ", Name: "B", SessionID: "jti-b"}, payload)

	// Other members only hear the entry notice.
	for _, env := range f.hub.received(t, "conn-a") {
		assert.NotEqual(t, KindSession, env.Event)
	}
}

func TestTracker_JoinUnknownRoom(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	_, err := f.tracker.Join("QQQQ", "A", "conn-a")
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Join(QQQQ) error = %v, want ErrRoomNotFound", err)
	}

	members, _ := f.tracker.Members("WXYZ")
	if members != 0 {
		t.Errorf("WXYZ members = %d, want 0", members)
	}
	if f.reg.Exists("QQQQ") {
		t.Error("failed join must not create a room")
	}
}

func TestTracker_JoinNormalizesCode(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	s := mustJoin(t, f.tracker, " wxyz", "A", "conn-a")
	if s.RoomCode != "WXYZ" {
		t.Errorf("RoomCode = %q, want WXYZ", s.RoomCode)
	}
}

func TestTracker_JoinRequiresName(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	_, err := f.tracker.Join("WXYZ", "   ", "conn-a")
	if !domain.IsValidation(err) {
		t.Fatalf("Join() error = %v, want ValidationError", err)
	}
}

func TestTracker_LeaveTwiceIsNoop(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	mustJoin(t, f.tracker, "WXYZ", "A", "conn-a")
	b := mustJoin(t, f.tracker, "WXYZ", "B", "conn-b")

	f.tracker.Leave(b)
	f.tracker.Leave(b)

	members, ok := f.tracker.Members("WXYZ")
	if !ok || members != 1 {
		t.Fatalf("Members() = %d, %v, want 1, true", members, ok)
	}
	if !b.Retired() {
		t.Error("session should be retired after Leave")
	}

	leaves := 0
	for _, c := range f.hub.chats(t, "conn-a") {
		if c.Message == domain.LeftRoom {
			leaves++
		}
	}
	if leaves != 1 {
		t.Errorf("A saw %d leave notices, want 1", leaves)
	}
}

func TestTracker_OldCodeNotReusedAfterEmpty(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ", "ABCD")}, RouterConfig{})
	f.reg.Create()

	a := mustJoin(t, f.tracker, "WXYZ", "A", "conn-a")
	f.tracker.Leave(a)

	if _, err := f.tracker.Join("WXYZ", "B", "conn-b"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Join() on emptied room error = %v, want ErrRoomNotFound", err)
	}
}

func TestTracker_StaleSessionDoesNotTouchRecreatedRoom(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	stale := mustJoin(t, f.tracker, "WXYZ", "A", "conn-a")
	f.reg.Delete("WXYZ")

	if _, err := f.reg.Create(); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mustJoin(t, f.tracker, "WXYZ", "B", "conn-b")

	f.tracker.Leave(stale)

	members, ok := f.tracker.Members("WXYZ")
	if !ok || members != 1 {
		t.Errorf("Members() = %d, %v, want 1, true", members, ok)
	}
}

func TestTracker_ConcurrentJoinLeave(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	// Keep one member so the room survives the churn.
	mustJoin(t, f.tracker, "WXYZ", "anchor", "conn-anchor")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.tracker.Join("WXYZ", fmt.Sprintf("user-%d", i), fmt.Sprintf("conn-%d", i))
			if err != nil {
				t.Errorf("Join() error = %v", err)
				return
			}
			if i%2 == 0 {
				f.tracker.Leave(s)
				f.tracker.Leave(s)
			}
		}(i)
	}
	wg.Wait()

	members, ok := f.tracker.Members("WXYZ")
	if !ok {
		t.Fatal("room vanished during churn")
	}
	if want := 1 + n/2; members != want {
		t.Errorf("Members() = %d, want %d", members, want)
	}
}

func TestTracker_HistoryMatchesAnchorBroadcastOrder(t *testing.T) {
	f := newFixture(t, RegistryConfig{Generate: scriptedCodes("WXYZ")}, RouterConfig{})
	f.reg.Create()

	mustJoin(t, f.tracker, "WXYZ", "anchor", "conn-anchor")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.tracker.Join("WXYZ", fmt.Sprintf("u%d", i), fmt.Sprintf("c%d", i))
			if err != nil {
				t.Errorf("Join() error = %v", err)
				return
			}
			_ = f.router.Route(s, ChatEvent{Text: fmt.Sprintf("hi from %d", i)})
			f.tracker.Leave(s)
		}(i)
	}
	wg.Wait()

	stored := f.history.list("WXYZ")
	seen := f.hub.chats(t, "conn-anchor")
	require.Len(t, seen, len(stored))

	for i, msg := range stored {
		assert.Equal(t, uint64(i+1), msg.Seq, "seq at %d", i)
		if i > 0 {
			assert.False(t, msg.Timestamp.Before(stored[i-1].Timestamp), "timestamp went backwards at %d", i)
		}
		assert.Equal(t, msg.Content, seen[i].Message, "content at %d", i)
	}
}
