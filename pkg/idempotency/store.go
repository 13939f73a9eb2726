package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key builds a dedupe key for an inbound event, e.g. scope "decision" with
// the transport's callback id.
func (s *Store) Key(scope, id string) string {
	return fmt.Sprintf("idem:%s:%s", scope, id)
}

// Seen marks the key and reports whether it had been marked before.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}
