package history

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"golang.org/x/sync/singleflight"
)

// DefaultReadTimeout bounds a history read.
const DefaultReadTimeout = 5 * time.Second

type snapshot struct {
	messages  []domain.Message
	startedAt time.Time
}

// Reader serves room history for hydration. A read first waits for the
// room's pending writes, so it sees every message broadcast before it was
// made.
type Reader struct {
	store   Store
	writer  *Writer
	timeout time.Duration
	sfGroup singleflight.Group

	reads     atomic.Int64
	coalesced atomic.Int64
}

// NewReader creates a Reader over store whose writes go through writer.
func NewReader(store Store, writer *Writer) *Reader {
	return &Reader{store: store, writer: writer, timeout: DefaultReadTimeout}
}

// List returns the messages of room code in append order. Concurrent reads of
// one room share a single store query.
func (r *Reader) List(ctx context.Context, code string) ([]domain.Message, error) {
	r.reads.Add(1)
	if r.writer != nil {
		if err := r.writer.Barrier(ctx, code); err != nil && !errors.Is(err, ErrWriterStopped) {
			return nil, fmt.Errorf("wait for pending writes: %w", err)
		}
	}
	flushed := time.Now()

	val, err, shared := r.sfGroup.Do(code, func() (any, error) {
		return r.load(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	snap := val.(snapshot)

	// A shared query that began before our barrier completed may miss writes
	// we are entitled to see.
	if shared {
		if snap.startedAt.Before(flushed) {
			fresh, err := r.load(ctx, code)
			if err != nil {
				return nil, err
			}
			return fresh.messages, nil
		}
		r.coalesced.Add(1)
	}
	return append([]domain.Message(nil), snap.messages...), nil
}

func (r *Reader) load(ctx context.Context, code string) (snapshot, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	started := time.Now()
	messages, err := r.store.ListByRoom(ctx, code)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return snapshot{messages: messages, startedAt: started}, nil
}

// ReaderStats is a snapshot of reader counters.
type ReaderStats struct {
	Reads     int64 `json:"reads"`
	Coalesced int64 `json:"coalesced"`
}

// Stats returns the reader counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{Reads: r.reads.Load(), Coalesced: r.coalesced.Load()}
}
