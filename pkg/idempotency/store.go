package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checker reports whether key was already claimed, claiming it if not.
type Checker interface {
	Seen(ctx context.Context, key string) (bool, error)
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// MessageKey identifies a Kafka message by its position.
func MessageKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// RequestKey scopes a client supplied Idempotency-Key to a route.
func RequestKey(scope, key string) string {
	return fmt.Sprintf("idem:http:%s:%s", scope, key)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget drops a claim, e.g. after the request it guarded failed.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
