// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

// Package store owns the PostgreSQL plumbing shared by the database-backed
// repositories: connection pooling and embedded schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// MaxRetries bounds the ping attempts after the first one.
	MaxRetries uint64
	// Backoff is the base delay of the exponential backoff.
	Backoff time.Duration
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	Logger   *slog.Logger
}

// DefaultConnectOptions waits roughly half a minute for a starting database.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{MaxRetries: 6, Backoff: 500 * time.Millisecond}
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// while the server is unreachable. A malformed URL fails immediately.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectOptions().Backoff
	}

	var pool *pgxpool.Pool
	attempt := 0
	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not reachable yet",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
