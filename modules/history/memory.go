package history

import (
	"context"
	"sync"

	domain "github.com/example/sketchroom/domain/room"
)

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]domain.Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]domain.Message)}
}

func (s *MemoryStore) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[msg.RoomCode] = append(s.rooms[msg.RoomCode], msg)
	return nil
}

func (s *MemoryStore) ListByRoom(_ context.Context, code string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.rooms[code]...), nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string][]domain.Message)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
