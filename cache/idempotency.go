package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore maps a client supplied Idempotency-Key to the id of the
// resource it created. A nil redis client stores nothing.
type IdempotencyStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{redis: client, ttl: ttl}
}

func (s *IdempotencyStore) idemKey(scope, key string) string {
	return "idem:order:" + scope + ":" + key
}

// Get returns the stored value or "" when the key is unknown.
func (s *IdempotencyStore) Get(ctx context.Context, scope, key string) (string, error) {
	if s.redis == nil || key == "" {
		return "", nil
	}
	val, err := s.redis.Get(ctx, s.idemKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *IdempotencyStore) Set(ctx context.Context, scope, key, value string) error {
	if s.redis == nil || key == "" {
		return nil
	}
	return s.redis.Set(ctx, s.idemKey(scope, key), value, s.ttl).Err()
}
