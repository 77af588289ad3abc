// Package cache keeps a chain's view in Redis.
package cache

import (
	"TrueMarket/internal/storage"
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// NewClient creates a Redis client and pings it.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisStore is a storage.Store in Redis. Values are plain string keys
// under truemarket:<chain>:; a sorted set of all keys at score 0 gives
// byte-ordered prefix scans through ZRANGEBYLEX.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	index  string
}

func NewRedisStore(rdb *redis.Client, chain string) *RedisStore {
	prefix := "truemarket:" + chain + ":"
	return &RedisStore{rdb: rdb, prefix: prefix + "kv:", index: prefix + "keys"}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]storage.KV, error) {
	keys, err := s.rdb.ZRangeByLex(ctx, s.index, &redis.ZRangeBy{
		Min: "[" + prefix,
		Max: "[" + prefix + "\xff",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	vals, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: mget %s: %w", prefix, err)
	}

	out := make([]storage.KV, 0, len(keys))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, storage.KV{Key: keys[i], Value: []byte(str)})
	}
	return out, nil
}

// Apply writes values and index entries in one MULTI/EXEC.
func (s *RedisStore) Apply(ctx context.Context, writes []storage.KV) error {
	if len(writes) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]redis.Z, 0, len(writes))
		for _, kv := range writes {
			pipe.Set(ctx, s.prefix+kv.Key, kv.Value, 0)
			members = append(members, redis.Z{Score: 0, Member: kv.Key})
		}
		pipe.ZAdd(ctx, s.index, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: apply %d writes: %w", len(writes), err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}
