// Package analytics turns room lifecycle events into counters and Prometheus
// metrics.
package analytics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/example/sketchroom/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sketchroom"

// Stats is a snapshot of the recorder counters.
type Stats struct {
	RoomsCreated    int64            `json:"rooms_created"`
	RoomsClosed     int64            `json:"rooms_closed"`
	ClosedByReason  map[string]int64 `json:"closed_by_reason"`
	LiveRooms       int64            `json:"live_rooms"`
	OnlineMembers   int64            `json:"online_members"`
	MemberJoins     int64            `json:"member_joins"`
	MemberLeaves    int64            `json:"member_leaves"`
	MessagesPosted  int64            `json:"messages_posted"`
	HistoryFailures int64            `json:"history_failures"`
}

// Recorder aggregates room events. It is safe for concurrent use.
type Recorder struct {
	roomsCreated    atomic.Int64
	roomsClosed     atomic.Int64
	memberJoins     atomic.Int64
	memberLeaves    atomic.Int64
	messagesPosted  atomic.Int64
	historyFailures atomic.Int64

	mu             sync.Mutex
	members        map[string]int
	closedByReason map[string]int64

	registry      *prometheus.Registry
	liveRooms     prometheus.Gauge
	onlineMembers prometheus.Gauge
	createdTotal  prometheus.Counter
	closedTotal   *prometheus.CounterVec
	joinsTotal    prometheus.Counter
	leavesTotal   prometheus.Counter
	messagesTotal prometheus.Counter
	messageBytes  prometheus.Histogram
	failuresTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own Prometheus registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		members:        make(map[string]int),
		closedByReason: make(map[string]int64),
		registry:       prometheus.NewRegistry(),
		liveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_live",
			Help:      "Rooms currently in the registry.",
		}),
		onlineMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members_online",
			Help:      "Sessions currently joined to a room.",
		}),
		createdTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created.",
		}),
		closedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_closed_total",
			Help:      "Rooms closed, by reason.",
		}, []string{"reason"}),
		joinsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_joins_total",
			Help:      "Sessions that joined a room.",
		}),
		leavesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_leaves_total",
			Help:      "Sessions that left a room.",
		}),
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Chat and notice messages recorded.",
		}),
		messageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_bytes",
			Help:      "Size of recorded message content.",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 6),
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_failures_total",
			Help:      "Failed history store writes, by operation.",
		}, []string{"operation"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.liveRooms,
		r.onlineMembers,
		r.createdTotal,
		r.closedTotal,
		r.joinsTotal,
		r.leavesTotal,
		r.messagesTotal,
		r.messageBytes,
		r.failuresTotal,
	)
	return r
}

// Registry returns the Prometheus registry holding the recorder metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RoomCreated(events.RoomCreatedEvent) {
	r.roomsCreated.Add(1)
	r.createdTotal.Inc()
	r.liveRooms.Inc()
}

func (r *Recorder) RoomClosed(ev events.RoomClosedEvent) {
	r.roomsClosed.Add(1)
	r.closedTotal.WithLabelValues(ev.Reason).Inc()
	r.liveRooms.Dec()

	r.mu.Lock()
	r.closedByReason[ev.Reason]++
	r.setMembersLocked(ev.Code, 0)
	r.mu.Unlock()
}

func (r *Recorder) MemberJoined(ev events.MemberJoinedEvent) {
	r.memberJoins.Add(1)
	r.joinsTotal.Inc()

	r.mu.Lock()
	r.setMembersLocked(ev.Code, ev.Members)
	r.mu.Unlock()
}

func (r *Recorder) MemberLeft(ev events.MemberLeftEvent) {
	r.memberLeaves.Add(1)
	r.leavesTotal.Inc()

	r.mu.Lock()
	r.setMembersLocked(ev.Code, ev.Members)
	r.mu.Unlock()
}

func (r *Recorder) MessagePosted(ev events.MessagePostedEvent) {
	r.messagesPosted.Add(1)
	r.messagesTotal.Inc()
	r.messageBytes.Observe(float64(ev.Length))
}

func (r *Recorder) HistoryWriteFailed(ev events.HistoryWriteFailedEvent) {
	r.historyFailures.Add(1)
	r.failuresTotal.WithLabelValues(ev.Operation).Inc()
}

// setMembersLocked records the latest member count of a room. Caller holds mu.
func (r *Recorder) setMembersLocked(code string, members int) {
	if members <= 0 {
		delete(r.members, code)
	} else {
		r.members[code] = members
	}
	total := 0
	for _, n := range r.members {
		total += n
	}
	r.onlineMembers.Set(float64(total))
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	byReason := make(map[string]int64, len(r.closedByReason))
	for k, v := range r.closedByReason {
		byReason[k] = v
	}
	online := 0
	for _, n := range r.members {
		online += n
	}
	r.mu.Unlock()

	created := r.roomsCreated.Load()
	closed := r.roomsClosed.Load()
	live := created - closed
	if live < 0 {
		live = 0
	}
	return Stats{
		RoomsCreated:    created,
		RoomsClosed:     closed,
		ClosedByReason:  byReason,
		LiveRooms:       live,
		OnlineMembers:   int64(online),
		MemberJoins:     r.memberJoins.Load(),
		MemberLeaves:    r.memberLeaves.Load(),
		MessagesPosted:  r.messagesPosted.Load(),
		HistoryFailures: r.historyFailures.Load(),
	}
}
