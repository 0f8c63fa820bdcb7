package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig bounds the connection pool's size and connection lifetimes.
// It is derived from config.Config at call sites that have one loaded, or
// DefaultPoolConfig() for call sites (tests, ad hoc tooling) that don't.
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig returns the pool sizing used when no config.Config is
// available to drive it, e.g. in integration tests that only need a
// TEST_DATABASE_URL.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          20,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// Open creates the connection pool backing a storage.Gateway. Pool sizing
// keeps one connection per in-flight request's lifetime without letting an
// idle service pin connections indefinitely; pcfg carries that sizing in
// from config.Config rather than hardcoding it here.
func Open(ctx context.Context, url string, pcfg PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	// Connection pool configuration
	cfg.MaxConns = pcfg.MaxConns
	cfg.MinConns = pcfg.MinConns
	cfg.MaxConnLifetime = pcfg.MaxConnLifetime
	cfg.MaxConnIdleTime = pcfg.MaxConnIdleTime
	cfg.HealthCheckPeriod = pcfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}
