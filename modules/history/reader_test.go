package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/sketchroom/domain/room"
)

type brokenStore struct {
	*MemoryStore
}

func (brokenStore) ListByRoom(context.Context, string) ([]domain.Message, error) {
	return nil, errors.New("connection refused")
}

func TestReader_SeesEveryQueuedWrite(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), delay: 2 * time.Millisecond}
	w := startWriter(t, store, WriterConfig{Lanes: 2})
	r := NewReader(store, w)

	for i := 1; i <= 10; i++ {
		w.Append(message("WXYZ", uint64(i), "m"))
	}

	got, err := r.List(context.Background(), "WXYZ")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 10 {
		t.Errorf("List() len = %d, want 10", len(got))
	}
}

func TestReader_ConcurrentReadsAgree(t *testing.T) {
	store := NewMemoryStore()
	w := startWriter(t, store, WriterConfig{Lanes: 1})
	r := NewReader(store, w)

	for i := 1; i <= 5; i++ {
		w.Append(message("WXYZ", uint64(i), "m"))
	}

	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.List(context.Background(), "WXYZ")
			if err != nil {
				t.Errorf("List() error = %v", err)
				return
			}
			results[i] = len(got)
		}(i)
	}
	wg.Wait()

	for i, n := range results {
		if n != 5 {
			t.Errorf("reader %d saw %d messages, want 5", i, n)
		}
	}
	if got := r.Stats().Reads; got != 16 {
		t.Errorf("Stats().Reads = %d, want 16", got)
	}
}

func TestReader_UnknownRoomIsEmpty(t *testing.T) {
	store := NewMemoryStore()
	r := NewReader(store, startWriter(t, store, WriterConfig{}))

	got, err := r.List(context.Background(), "QQQQ")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

func TestReader_StoreFailureIsPersistenceError(t *testing.T) {
	store := brokenStore{NewMemoryStore()}
	r := NewReader(store, startWriter(t, store, WriterConfig{}))

	_, err := r.List(context.Background(), "WXYZ")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("List() error = %v, want ErrPersistence", err)
	}
}
