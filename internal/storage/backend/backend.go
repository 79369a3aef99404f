// Package backend selects and opens the configured Account Store.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/config"
	"github.com/cory-johannsen/pong/internal/storage"
	"github.com/cory-johannsen/pong/internal/storage/memory"
	"github.com/cory-johannsen/pong/internal/storage/postgres"
	"github.com/cory-johannsen/pong/internal/storage/sqlite"
)

// Open returns the AccountStore named by cfg.Store.Backend.
//
// When the durable backend cannot be opened and cfg.Store.FallbackToMemory is
// set, a warning is logged and an in-memory store seeded with storage.DemoSeed
// is returned instead. A memory backend chosen explicitly is also seeded with
// the demo accounts. If cfg.Store.SeedFile is set it is applied afterwards.
//
// Postcondition: Returns a usable store or a non-nil error.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.AccountStore, error) {
	store, err := openDurable(ctx, cfg)
	if err != nil {
		if !cfg.Store.FallbackToMemory {
			return nil, err
		}
		logger.Warn("durable account store unavailable, falling back to memory",
			zap.String("backend", cfg.Store.Backend),
			zap.Error(err),
		)
		store = nil
	}
	if store == nil {
		mem := memory.New()
		if _, err := storage.ApplySeed(ctx, mem, storage.DemoSeed(), logger); err != nil {
			return nil, fmt.Errorf("seeding demo accounts: %w", err)
		}
		store = mem
	}

	if cfg.Store.SeedFile != "" {
		seed, err := storage.LoadSeed(cfg.Store.SeedFile)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if _, err := storage.ApplySeed(ctx, store, seed, logger); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// openDurable returns (nil, nil) for the memory backend.
func openDurable(ctx context.Context, cfg config.Config) (storage.AccountStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return nil, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		if err := pool.CheckSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return postgres.NewAccountRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
