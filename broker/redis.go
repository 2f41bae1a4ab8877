package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var _ StateStore = &RedisStateStore{}

const redisStatePrefix = "oauth-state-"

// RedisStateStore keeps state tokens in Redis, leaning on key TTLs for
// expiry and on GETDEL for atomic one-time consumption.
type RedisStateStore struct {
	rdb redis.Cmdable
}

// NewRedisStateStore creates a state store on the given Redis client.
func NewRedisStateStore(rdb redis.Cmdable) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

// Put stores the state with a TTL matching its validity window.
func (s *RedisStateStore) Put(ctx context.Context, st OAuthState) error {
	ttl := time.Until(st.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("state store: state already expired")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("state store: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, redisStatePrefix+st.State, string(data), ttl).Err(); err != nil {
		return fmt.Errorf("state store: set: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the state. Redis expires the key
// on its own, but the window is still re-checked in case the server clock
// lags the TTL.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (*OAuthState, error) {
	data, err := s.rdb.GetDel(ctx, redisStatePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidState
	} else if err != nil {
		return nil, fmt.Errorf("state store: getdel: %w", err)
	}
	var st OAuthState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("state store: unmarshal: %w", err)
	}
	if st.Expired(time.Now()) {
		return nil, ErrInvalidState
	}
	return &st, nil
}
