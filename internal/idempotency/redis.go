package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares the dedupe window across API replicas. Entries expire
// after the configured window; an expired key is claimable again, which
// bounds how long a crashed holder can block retries.
type RedisStore struct {
	client *redis.Client
	window time.Duration
}

type redisEntry struct {
	State  State  `json:"state"`
	Result []byte `json:"result,omitempty"`
	Cause  string `json:"cause,omitempty"`
}

const keyPrefix = "idem:"

func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisStore{client: client, window: window}
}

func (s *RedisStore) BeginOrGet(ctx context.Context, key string) (Outcome, error) {
	claim, err := json.Marshal(redisEntry{State: StateInProgress})
	if err != nil {
		return Outcome{}, err
	}

	// SetNX is the atomic check-and-set; losers fall through to a read.
	ok, err := s.client.SetNX(ctx, keyPrefix+key, claim, s.window).Result()
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return Outcome{State: StateNew}, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{State: StateInProgress}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Outcome{}, err
	}
	return Outcome{State: entry.State, Result: entry.Result, Cause: entry.Cause}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, result []byte) error {
	entry, err := json.Marshal(redisEntry{State: StateDone, Result: result})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, entry, s.window).Err()
}

func (s *RedisStore) Fail(ctx context.Context, key string, cause error, policy FailPolicy) error {
	if policy == Retryable {
		return s.client.Del(ctx, keyPrefix+key).Err()
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	entry, err := json.Marshal(redisEntry{State: StateFailed, Cause: msg})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, entry, s.window).Err()
}
