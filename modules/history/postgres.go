package history

import (
	"context"
	"fmt"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS room_messages (
	id         TEXT PRIMARY KEY,
	room_code  TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	sender     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_room_messages_room_seq ON room_messages (room_code, seq);
`

// PostgresStore stores history in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the schema if needed.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres history backend requires PG_URL")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the room_messages table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Append inserts msg. Re-appending a message with the same ID is ignored.
func (s *PostgresStore) Append(ctx context.Context, msg domain.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_messages (id, room_code, seq, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.RoomCode, int64(msg.Seq), msg.Sender, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListByRoom returns a room's messages ordered by sequence number.
func (s *PostgresStore) ListByRoom(ctx context.Context, code string) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_code, seq, sender, content, created_at
		FROM room_messages
		WHERE room_code = $1
		ORDER BY seq ASC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var seq int64
		if err := rows.Scan(&msg.ID, &msg.RoomCode, &seq, &msg.Sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Seq = uint64(seq)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// DeleteRoom removes every message of a room.
func (s *PostgresStore) DeleteRoom(ctx context.Context, code string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM room_messages WHERE room_code = $1`, code); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// Clear removes every stored message.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM room_messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
