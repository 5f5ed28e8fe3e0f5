package history

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono/pkg/types"
)

// DefaultWriteTimeout bounds a single store call made by the writer.
const DefaultWriteTimeout = 5 * time.Second

// ErrWriterStopped is returned by Barrier once the writer has shut down.
var ErrWriterStopped = errors.New("history writer stopped")

type jobKind int

const (
	jobAppend jobKind = iota
	jobPurge
	jobBarrier
)

func (k jobKind) String() string {
	switch k {
	case jobAppend:
		return "append"
	case jobPurge:
		return "purge"
	default:
		return "barrier"
	}
}

type job struct {
	kind jobKind
	code string
	msg  domain.Message
	done chan struct{}
}

// lane is one ordered, unbounded queue with a single consumer.
type lane struct {
	mu     sync.Mutex
	queue  []job
	closed bool
	signal chan struct{}
}

func (l *lane) push(j job) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, j)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

func (l *lane) take() ([]job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	jobs := l.queue
	l.queue = nil
	return jobs, l.closed
}

func (l *lane) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// FailureFunc is told about every store call that failed.
type FailureFunc func(code, operation string, err error)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Lanes is the number of concurrent store writers. A room always maps to
	// the same lane.
	Lanes        int
	WriteTimeout time.Duration
	OnFailure    FailureFunc
}

// Writer applies history writes to a Store off the broadcast path. Writes for
// one room are applied in submission order; rooms on different lanes proceed
// independently. Append and Purge never block.
type Writer struct {
	lanes     []*lane
	timeout   time.Duration
	onFailure FailureFunc
	logger    types.Logger

	store   Store
	started atomic.Bool
	wg      sync.WaitGroup

	written atomic.Int64
	failed  atomic.Int64
	pending atomic.Int64
}

// NewWriter creates a Writer. Jobs queue up until Start is called.
func NewWriter(cfg WriterConfig, logger types.Logger) *Writer {
	if cfg.Lanes <= 0 {
		cfg.Lanes = 4
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	w := &Writer{
		lanes:     make([]*lane, cfg.Lanes),
		timeout:   cfg.WriteTimeout,
		onFailure: cfg.OnFailure,
		logger:    logger,
	}
	for i := range w.lanes {
		w.lanes[i] = &lane{signal: make(chan struct{}, 1)}
	}
	return w
}

// Start begins draining every lane into store.
func (w *Writer) Start(store Store) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.store = store
	for _, l := range w.lanes {
		w.wg.Add(1)
		go w.run(l)
	}
}

// Stop closes the lanes and waits until queued jobs are applied or ctx ends.
func (w *Writer) Stop(ctx context.Context) error {
	for _, l := range w.lanes {
		l.close()
	}
	if !w.started.Load() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) laneFor(code string) *lane {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return w.lanes[h.Sum32()%uint32(len(w.lanes))]
}

func (w *Writer) submit(j job) bool {
	w.pending.Add(1)
	if !w.laneFor(j.code).push(j) {
		w.pending.Add(-1)
		return false
	}
	return true
}

// Append queues msg for persistence.
func (w *Writer) Append(msg domain.Message) {
	if !w.submit(job{kind: jobAppend, code: msg.RoomCode, msg: msg}) {
		w.failed.Add(1)
		w.logger.Warn("History append after writer stopped", "code", msg.RoomCode, "seq", msg.Seq)
	}
}

// Purge queues deletion of a room's history behind its pending appends.
func (w *Writer) Purge(code string) {
	if !w.submit(job{kind: jobPurge, code: code}) {
		w.failed.Add(1)
		w.logger.Warn("History purge after writer stopped", "code", code)
	}
}

// Barrier returns once every write queued for code before the call has been
// applied.
func (w *Writer) Barrier(ctx context.Context, code string) error {
	done := make(chan struct{})
	if !w.submit(job{kind: jobBarrier, code: code, done: done}) {
		return ErrWriterStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run(l *lane) {
	defer w.wg.Done()
	for {
		jobs, closed := l.take()
		for _, j := range jobs {
			w.apply(j)
			w.pending.Add(-1)
		}
		if len(jobs) > 0 {
			continue
		}
		if closed {
			return
		}
		<-l.signal
	}
}

func (w *Writer) apply(j job) {
	if j.kind == jobBarrier {
		close(j.done)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch j.kind {
	case jobAppend:
		err = w.store.Append(ctx, j.msg)
	case jobPurge:
		err = w.store.DeleteRoom(ctx, j.code)
	}
	if err == nil {
		if j.kind == jobAppend {
			w.written.Add(1)
		}
		return
	}

	w.failed.Add(1)
	w.logger.Error("History write failed", "code", j.code, "operation", j.kind.String(), "error", err)
	if w.onFailure != nil {
		w.onFailure(j.code, j.kind.String(), err)
	}
}

// WriterStats is a snapshot of writer counters.
type WriterStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
	Lanes   int   `json:"lanes"`
}

// Stats returns the writer counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Pending: w.pending.Load(),
		Lanes:   len(w.lanes),
	}
}
