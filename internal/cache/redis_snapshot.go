package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-stage/internal/config"
	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// setIfNewer writes the snapshot only when its version is higher than the
// stored one in the same epoch, so concurrent writers never roll a session
// back. A new epoch always replaces the stored snapshot.
var setIfNewer = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "version", "epoch")
if cur[1] and (cur[2] or "") == ARGV[4] and tonumber(cur[1]) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "epoch", ARGV[4], "state", ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

type RedisSnapshotCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ SnapshotCache = (*RedisSnapshotCache)(nil)

func NewRedisSnapshotCache(cfg config.RedisConfig, prefix string, ttl time.Duration) (*RedisSnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSnapshotCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (c *RedisSnapshotCache) BuildKey(session string) string {
	return fmt.Sprintf("%s:snapshot:%s", c.prefix, session)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, session string) (domain.ProgramState, error) {
	data, err := c.client.HGet(ctx, c.BuildKey(session), "state").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ProgramState{}, ErrCacheMiss
		}
		return domain.ProgramState{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var st domain.ProgramState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.ProgramState{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return st, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, session string, state domain.ProgramState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	keys := []string{c.BuildKey(session)}
	if err := setIfNewer.Run(ctx, c.client, keys, state.Version, data, c.ttl.Milliseconds(), state.Epoch).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}
