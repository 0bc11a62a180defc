package alerter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// StateStore remembers the last percentage notified per row key
type StateStore interface {
	Load(ctx context.Context) (map[string]int, error)
	Save(ctx context.Context, key string, pct int) error
}

// RedisState keeps notification state in a single redis hash
type RedisState struct {
	client *redis.Client
	key    string
}

// NewRedisState creates a state store on the hash at key
func NewRedisState(client *redis.Client, key string) *RedisState {
	return &RedisState{client: client, key: key}
}

// Load returns every recorded key. Unparsable values are dropped.
func (s *RedisState) Load(ctx context.Context) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, pkgerrors.NewCache(s.key, "failed to load alert state", err)
	}
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
		}
	}
	return out, nil
}

// Save records pct for key
func (s *RedisState) Save(ctx context.Context, key string, pct int) error {
	if err := s.client.HSet(ctx, s.key, key, pct).Err(); err != nil {
		return pkgerrors.NewCache(s.key, "failed to save alert state", err)
	}
	return nil
}
