package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis-backed store.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore serves connections from a go-redis client pool.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}))
}

func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Acquire pins one pooled connection and pings it so dial failures
// surface here instead of on the first command.
func (s *RedisStore) Acquire(ctx context.Context) (Conn, error) {
	conn := s.rdb.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("redis acquire: %w", err)
	}
	return &redisConn{conn: conn}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

type redisConn struct {
	conn *redis.Conn
}

func (c *redisConn) Set(ctx context.Context, key, value string) error {
	return c.conn.Set(ctx, key, value, 0).Err()
}

func (c *redisConn) Get(ctx context.Context, key string) (string, error) {
	v, err := c.conn.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Keys walks the SCAN cursor until limit keys are collected or the
// iteration completes. SCAN may return duplicates across pages.
func (c *redisConn) Keys(ctx context.Context, limit int) ([]string, error) {
	keys := keyBuf(limit)
	if limit <= 0 {
		return keys, nil
	}
	seen := make(map[string]struct{}, cap(keys))
	var cursor uint64
	for {
		page, next, err := c.conn.Scan(ctx, cursor, "*", int64(limit)).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if len(keys) == limit {
				return keys, nil
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (c *redisConn) Close() error {
	return c.conn.Close()
}

var _ Store = (*RedisStore)(nil)
