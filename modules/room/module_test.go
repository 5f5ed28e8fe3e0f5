package room

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/modules/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T, writer HistoryWriter, hub Broadcaster, codes ...string) *Module {
	t.Helper()
	m, err := NewModule(Config{}, writer, hub, &mockLogger{})
	require.NoError(t, err)
	m.registry.generate = scriptedCodes(codes...)
	return m
}

// closedNotices returns the room_closed payloads delivered to connID.
func closedNotices(t *testing.T, hub *fakeHub, connID string) []RoomClosedPayload {
	t.Helper()
	var out []RoomClosedPayload
	for _, env := range hub.received(t, connID) {
		if env.Event != KindRoomClosed {
			continue
		}
		var p RoomClosedPayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		out = append(out, p)
	}
	return out
}

func TestModule_StopClosesEveryRoom(t *testing.T) {
	hub := newFakeHub()
	hist := newRecordingHistory()
	m := newTestModule(t, hist, hub, "ABCD", "WXYZ")

	busy, err := m.registry.Create()
	require.NoError(t, err)
	idle, err := m.registry.Create()
	require.NoError(t, err)
	sess, err := m.Join(busy, "alice", "conn-a", nil)
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, 0, m.registry.Count())
	assert.ElementsMatch(t, []string{busy, idle}, hist.purged)
	assert.Empty(t, hist.list(busy))
	assert.Equal(t, []RoomClosedPayload{{Room: busy, Reason: "shutdown"}}, closedNotices(t, hub, "conn-a"))

	err = m.Dispatch(sess, []byte(`{"event":"message","data":{"data":"late"}}`))
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Empty(t, hist.list(busy))
}

func TestModule_ReusedCodeIsolatedFromClosedRoom(t *testing.T) {
	hub := newFakeHub()
	hist := newRecordingHistory()
	m := newTestModule(t, hist, hub, "WXYZ")

	code, err := m.registry.Create()
	require.NoError(t, err)
	stale, err := m.Join(code, "old", "conn-old", nil)
	require.NoError(t, err)

	m.registry.Delete(code)

	again, err := m.registry.Create()
	require.NoError(t, err)
	require.Equal(t, code, again)
	fresh, err := m.Join(again, "new", "conn-new", nil)
	require.NoError(t, err)
	require.NoError(t, m.Dispatch(fresh, []byte(`{"event":"message","data":{"data":"hello"}}`)))

	assert.ErrorIs(t, m.Dispatch(stale, []byte(`{"event":"message","data":{"data":"ghost"}}`)), ErrSessionEnded)
	m.Leave(stale)

	// The old connection saw only its own room and the close.
	assert.Equal(t, []ChatPayload{{Name: "old", Message: domain.EnteredRoom}}, hub.chats(t, "conn-old"))
	assert.Equal(t, []RoomClosedPayload{{Room: code, Reason: "deleted"}}, closedNotices(t, hub, "conn-old"))

	// The new connection never hears about the room that came before.
	assert.Empty(t, closedNotices(t, hub, "conn-new"))
	members, ok := m.tracker.Members(again)
	require.True(t, ok)
	assert.Equal(t, 1, members)

	var contents []string
	for _, msg := range hist.list(again) {
		contents = append(contents, msg.Content)
	}
	assert.Equal(t, []string{domain.EnteredRoom, "hello"}, contents)
}

func TestModule_RestartStartsWithEmptyHistory(t *testing.T) {
	ctx := context.Background()
	storeCfg := history.StoreConfig{Backend: history.BackendSQLite, DBPath: filepath.Join(t.TempDir(), "rooms.db")}

	// First process: a room with one chat, then a clean shutdown in module
	// stop order.
	hm := history.NewModule(history.Config{Store: storeCfg}, &mockLogger{})
	require.NoError(t, hm.Start(ctx))
	rm := newTestModule(t, hm.Writer(), newFakeHub(), "ABCD")
	code, err := rm.registry.Create()
	require.NoError(t, err)
	sess, err := rm.Join(code, "alice", "conn-a", nil)
	require.NoError(t, err)
	require.NoError(t, rm.Dispatch(sess, []byte(`{"event":"message","data":{"data":"first life"}}`)))
	require.NoError(t, rm.Stop(ctx))
	require.NoError(t, hm.Stop(ctx))

	assert.Empty(t, listStored(t, storeCfg, code), "shutdown should purge every room")

	// Second process reuses the code and keeps only its own history.
	hm2 := history.NewModule(history.Config{Store: storeCfg}, &mockLogger{})
	require.NoError(t, hm2.Start(ctx))
	rm2 := newTestModule(t, hm2.Writer(), newFakeHub(), "ABCD")
	code2, err := rm2.registry.Create()
	require.NoError(t, err)
	require.Equal(t, code, code2)
	_, err = rm2.Join(code2, "bob", "conn-b", nil)
	require.NoError(t, err)
	require.NoError(t, hm2.Writer().Barrier(ctx, code2))

	msgs := listStored(t, storeCfg, code2)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].Sender)
	assert.Equal(t, domain.EnteredRoom, msgs[0].Content)
	require.NoError(t, hm2.Stop(ctx))
}

// listStored reads a room's rows through a separate connection to the store.
func listStored(t *testing.T, cfg history.StoreConfig, code string) []domain.Message {
	t.Helper()
	ctx := context.Background()
	store, err := history.Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()
	msgs, err := store.ListByRoom(ctx, code)
	require.NoError(t, err)
	return msgs
}
