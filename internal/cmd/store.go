package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/padillasconcrete/siteapi/internal/config"
	"github.com/padillasconcrete/siteapi/internal/core/engine"
	"github.com/padillasconcrete/siteapi/internal/core/redisstore"
	"github.com/padillasconcrete/siteapi/internal/core/store"
	"github.com/padillasconcrete/siteapi/internal/observability"
)

// openStore loads config, opens the libsql store and applies migrations.
func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	db, err := openStoreWith(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func openStoreWith(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// newRateLimiter builds the contact limiter on the configured attempt
// backend. The returned closer releases a Redis connection, if one was
// opened.
func newRateLimiter(ctx context.Context, cfg *config.Config, db *store.Store) (*engine.RateLimiter, io.Closer, error) {
	var (
		attempts engine.AttemptStore
		closer   io.Closer = nopCloser{}
	)

	switch cfg.Contact.AttemptStore {
	case "redis":
		rs, err := redisstore.Open(ctx, cfg.Redis, cfg.Contact.Window)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis attempt store: %w", err)
		}
		attempts, closer = rs, rs
	case "memory":
		attempts = engine.NewMemoryAttemptStore()
	default:
		if db == nil {
			return nil, nil, fmt.Errorf("attempt store %q requires the database", cfg.Contact.AttemptStore)
		}
		attempts = db
	}

	limiter := engine.NewRateLimiter(attempts)
	limiter.StorageKey = cfg.Contact.StorageKey
	limiter.MaxAttempts = cfg.Contact.MaxAttempts
	limiter.Window = cfg.Contact.Window
	limiter.Logger = observability.Logger()
	return limiter, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
