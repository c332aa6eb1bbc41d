// Package redisstore keeps contact attempt logs in Redis so every API replica
// enforces the same window.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/padillasconcrete/siteapi/internal/config"
)

const defaultKeyPrefix = "siteapi"

// Store implements engine.AttemptStore on a Redis client.
type Store struct {
	rdb    *redis.Client
	prefix string
	// ttl matches the limiter window: once the newest attempt has aged out
	// the whole log is stale.
	ttl time.Duration
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		prefix: defaultKeyPrefix,
		ttl:    time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg config.RedisConfig, window time.Duration) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	opts := []Option{}
	if cfg.KeyPrefix != "" {
		opts = append(opts, WithKeyPrefix(cfg.KeyPrefix))
	}
	if window > 0 {
		opts = append(opts, WithTTL(window))
	}
	return New(rdb, opts...), nil
}

func (s *Store) Key(storageKey string) string {
	if s.prefix == "" {
		return storageKey
	}
	return s.prefix + ":" + storageKey
}

func (s *Store) LoadAttempts(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load attempts %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) SaveAttempts(ctx context.Context, key string, data []byte) error {
	if err := s.rdb.Set(ctx, s.Key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save attempts %s: %w", key, err)
	}
	return nil
}

func (s *Store) ClearAttempts(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.Key(key)).Err(); err != nil {
		return fmt.Errorf("clear attempts %s: %w", key, err)
	}
	return nil
}

// CheckHealth pings the server.
func (s *Store) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
