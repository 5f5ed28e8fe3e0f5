package analytics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/sketchroom/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// replayScenario feeds the events of: A creates WXYZ, A and B join, A chats,
// B leaves, A leaves.
func replayScenario(r *Recorder) {
	r.RoomCreated(events.RoomCreatedEvent{Code: "WXYZ"})
	r.MemberJoined(events.MemberJoinedEvent{Code: "WXYZ", Name: "A", Members: 1})
	r.MessagePosted(events.MessagePostedEvent{Code: "WXYZ", Seq: 1, Length: 20})
	r.MemberJoined(events.MemberJoinedEvent{Code: "WXYZ", Name: "B", Members: 2})
	r.MessagePosted(events.MessagePostedEvent{Code: "WXYZ", Seq: 2, Length: 20})
	r.MessagePosted(events.MessagePostedEvent{Code: "WXYZ", Seq: 3, Length: 5})
	r.MemberLeft(events.MemberLeftEvent{Code: "WXYZ", Name: "B", Members: 1})
	r.MessagePosted(events.MessagePostedEvent{Code: "WXYZ", Seq: 4, Length: 17})
}

func TestRecorder_Scenario(t *testing.T) {
	r := NewRecorder()
	replayScenario(r)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.RoomsCreated)
	assert.Equal(t, int64(1), stats.LiveRooms)
	assert.Equal(t, int64(1), stats.OnlineMembers)
	assert.Equal(t, int64(2), stats.MemberJoins)
	assert.Equal(t, int64(4), stats.MessagesPosted)

	r.MemberLeft(events.MemberLeftEvent{Code: "WXYZ", Name: "A", Members: 0})
	r.RoomClosed(events.RoomClosedEvent{Code: "WXYZ", Reason: "empty"})

	stats = r.Stats()
	assert.Equal(t, int64(0), stats.LiveRooms)
	assert.Equal(t, int64(0), stats.OnlineMembers)
	assert.Equal(t, int64(1), stats.ClosedByReason["empty"])

	assert.Equal(t, float64(0), testutil.ToFloat64(r.liveRooms))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.closedTotal.WithLabelValues("empty")))
	assert.Equal(t, float64(4), testutil.ToFloat64(r.messagesTotal))
}

func TestRecorder_HistoryFailures(t *testing.T) {
	r := NewRecorder()
	r.HistoryWriteFailed(events.HistoryWriteFailedEvent{Code: "WXYZ", Operation: "append"})
	r.HistoryWriteFailed(events.HistoryWriteFailedEvent{Code: "WXYZ", Operation: "purge"})

	assert.Equal(t, int64(2), r.Stats().HistoryFailures)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.failuresTotal.WithLabelValues("append")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	replayScenario(r)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, metric := range []string{
		"sketchroom_rooms_live 1",
		"sketchroom_members_online 1",
		"sketchroom_messages_total 4",
	} {
		assert.True(t, strings.Contains(string(body), metric), "missing %q", metric)
	}
}

func TestAnalyticsModule_Handlers(t *testing.T) {
	m := NewModule(&mockLogger{})
	ctx := context.Background()

	require.NoError(t, m.handleRoomCreated(ctx, events.RoomCreatedEvent{Code: "WXYZ"}, nil))
	require.NoError(t, m.handleMemberJoined(ctx, events.MemberJoinedEvent{Code: "WXYZ", Members: 1}, nil))
	require.NoError(t, m.handleRoomClosed(ctx, events.RoomClosedEvent{Code: "WXYZ", Reason: "deleted"}, nil))

	stats, err := m.handleStats(ctx, StatsRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RoomsClosed)
	assert.Equal(t, int64(1), stats.ClosedByReason["deleted"])

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, "analytics", m.Name())
}
