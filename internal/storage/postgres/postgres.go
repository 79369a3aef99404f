// Package postgres provides the PostgreSQL Account Store using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/pong/internal/config"
)

// ErrSchemaMissing is returned by CheckSchema when the accounts migration has not run.
var ErrSchemaMissing = errors.New("accounts table missing, run the migrate command")

// Pool wraps the pgx connection pool shared by the account repository.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to PostgreSQL and verifies the server answers.
//
// Precondition: cfg must pass DatabaseConfig.Validate.
// Postcondition: Returns a connected Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Pool{pool: pool}, nil
}

// CheckSchema reports ErrSchemaMissing when the accounts table does not exist.
func (p *Pool) CheckSchema(ctx context.Context) error {
	var present bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('accounts') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("checking schema: %w", err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}

// Close releases all pool resources. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
