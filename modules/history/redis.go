package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix prefixes every history list key.
const DefaultRedisPrefix = "history:room:"

// RedisStore keeps each room's history in a Redis list of JSON messages.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, DefaultRedisPrefix), nil
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(code string) string {
	return s.prefix + code
}

// Append pushes msg onto the tail of its room's list.
func (s *RedisStore) Append(ctx context.Context, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history marshal error: %w", err)
	}
	if err := s.client.RPush(ctx, s.key(msg.RoomCode), data).Err(); err != nil {
		return fmt.Errorf("history append error: %w", err)
	}
	return nil
}

// ListByRoom returns the whole list for a room.
func (s *RedisStore) ListByRoom(ctx context.Context, code string) ([]domain.Message, error) {
	items, err := s.client.LRange(ctx, s.key(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history list error: %w", err)
	}

	out := make([]domain.Message, 0, len(items))
	for _, item := range items {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("history unmarshal error: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteRoom drops a room's list.
func (s *RedisStore) DeleteRoom(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("history delete error: %w", err)
	}
	return nil
}

// Clear drops every history list under the store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	keys := make([]string, 0, 100)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == cap(keys) {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("history clear error: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("history scan error: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("history clear error: %w", err)
		}
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
