// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/internhub/internhub/internal/observability"
	"github.com/internhub/internhub/internal/web"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmdWithDeps(nil)
}

func newServeCmdWithDeps(deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP API for registration, login, token refresh, logout,
password changes and approval links, together with the metrics and health
endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}
}

// runServeWithDeps runs the API until SIGINT, SIGTERM, cancellation of ctx,
// or a listener failure.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	logger.Info("starting internhub",
		"environment", cfg.Environment,
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
	)

	backend, err := deps.BackendOpener(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open store").Wrap(err)
	}
	defer backend.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var ready atomic.Bool
	readiness := func() bool {
		if !ready.Load() {
			return false
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		defer pingCancel()
		return backend.Ping(pingCtx) == nil
	}

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		registry  prometheus.Registerer
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness)
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	} else {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		registry = reg
	}

	svc, err := newAuthService(cfg, backend, logger, registry)
	if err != nil {
		return oops.With("operation", "build auth service").Wrap(err)
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		defer stopServer(obsServer, cfg.HTTP.ShutdownTimeout, "observability", logger)
	}

	api := deps.APIServerFactory(cfg.HTTP.Addr, svc,
		web.WithLogger(logger),
		web.WithMetrics(metrics),
		web.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
	)
	apiErrCh, err := api.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)

	var wg sync.WaitGroup
	if cfg.Auth.PurgeInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSweeper(ctx, svc.Tokens(), cfg.Auth.PurgeInterval, metrics.TokensPurgedTotal, logger)
		}()
	}

	ready.Store(true)
	cmd.Println("InternHub started")
	logger.Info("internhub ready", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down...")

	stopServer(api, cfg.HTTP.ShutdownTimeout, "api", logger)
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

func stopServer(s Server, timeout time.Duration, name string, logger *slog.Logger) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
