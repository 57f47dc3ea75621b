package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "gameroom:"

// Redis is a Backend stored in a Redis database. Each address is a string
// key under the prefix; a set tracks which addresses exist so Keys does not
// need SCAN.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the Redis server at redisURL.
func OpenRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, defaultRedisPrefix), nil
}

// NewRedisWithClient wraps an existing client. Keys are namespaced by prefix.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) stateKey(address string) string {
	return r.prefix + "state:" + address
}

func (r *Redis) indexKey() string {
	return r.prefix + "addresses"
}

// Get implements Backend.
func (r *Redis) Get(ctx context.Context, address string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.stateKey(address)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get state: %w", err)
	}
	return v, true, nil
}

// Apply implements Backend. Changes are sent as one MULTI/EXEC block.
func (r *Redis) Apply(ctx context.Context, changes []StateChange) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range changes {
			switch c.Kind {
			case KindSet:
				pipe.Set(ctx, r.stateKey(c.Key), c.Value, 0)
				pipe.SAdd(ctx, r.indexKey(), c.Key)
			case KindDelete:
				pipe.Del(ctx, r.stateKey(c.Key))
				pipe.SRem(ctx, r.indexKey(), c.Key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply changes: %w", err)
	}
	return nil
}

// Keys implements Backend.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
