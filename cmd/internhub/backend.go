// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/internal/auth/filestore"
	pgrepo "github.com/internhub/internhub/internal/auth/postgres"
	"github.com/internhub/internhub/internal/config"
	"github.com/internhub/internhub/internal/store"
)

// Backend is an opened account and refresh-token store.
type Backend struct {
	Accounts      auth.AccountRepository
	RefreshTokens auth.RefreshTokenRepository
	// Ping reports whether the store is reachable.
	Ping  func(ctx context.Context) error
	Close func()
}

// openBackend opens the store selected by cfg.Store.Driver.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverFile:
		st, err := filestore.Open(cfg.Store.Path, filestore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("using file store", "path", st.Path())
		return &Backend{
			Accounts:      filestore.NewAccountRepository(st),
			RefreshTokens: filestore.NewRefreshTokenRepository(st),
			Ping:          st.Ping,
			Close:         func() {},
		}, nil

	case config.DriverPostgres:
		opts := store.DefaultConnectOptions()
		opts.Logger = logger
		pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database")
		return &Backend{
			Accounts:      pgrepo.NewAccountRepository(pool),
			RefreshTokens: pgrepo.NewRefreshTokenRepository(pool),
			Ping:          pool.Ping,
			Close:         pool.Close,
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Store.Driver).Errorf("unknown store driver")
	}
}

// newAuthService wires the token service and auth service over b. reg
// receives the authentication metrics; nil disables them.
func newAuthService(cfg *config.Config, b *Backend, logger *slog.Logger, reg prometheus.Registerer) (*auth.Service, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.TokenConfig(), b.RefreshTokens, auth.WithTokenLogger(logger))
	if err != nil {
		return nil, err
	}

	opts := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithNotifier(auth.NewLogNotifier(logger)),
	}
	if reg != nil {
		opts = append(opts, auth.WithMetrics(auth.NewMetrics(reg)))
	}
	return auth.NewService(b.Accounts, tokens, auth.NewBcryptHasher(cfg.Auth.BcryptCost), opts...)
}

// openService loads and validates the configuration, opens the store and
// builds the auth service. The returned close function releases the store.
func openService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Service, func(), error) {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newAuthService(cfg, b, logger, nil)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return svc, b.Close, nil
}
