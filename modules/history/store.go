// Package history persists the ordered chat log of every room.
package history

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/sketchroom/domain/room"
)

// Store is an append-only message log keyed by room code.
type Store interface {
	// Append stores msg after every message previously appended for its room.
	Append(ctx context.Context, msg domain.Message) error
	// ListByRoom returns a room's messages in append order.
	ListByRoom(ctx context.Context, code string) ([]domain.Message, error)
	// DeleteRoom removes every message of a room. Deleting an unknown room is
	// not an error.
	DeleteRoom(ctx context.Context, code string) error
	// Clear removes the history of every room. Rooms live only as long as the
	// process, so anything stored at startup is orphaned.
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown history backend")

// StoreConfig selects and configures a Store backend.
type StoreConfig struct {
	Backend   string
	DBPath    string
	DBDebug   bool
	RedisAddr string
	PGURL     string
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, "":
		db, err := OpenSQLite(cfg.DBPath, cfg.DBDebug)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisAddr)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.PGURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
