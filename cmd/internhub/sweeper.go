// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/internhub/internhub/pkg/errutil"
)

// purger deletes expired refresh tokens.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// runSweeper purges expired refresh tokens every interval until ctx is done.
// Failures are logged and retried on the next tick.
func runSweeper(ctx context.Context, p purger, interval time.Duration, purged prometheus.Counter, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogErrorContext(ctx, logger, slog.LevelWarn, "refresh token purge failed", err)
				continue
			}
			if n > 0 {
				purged.Add(float64(n))
				logger.DebugContext(ctx, "purged expired refresh tokens", "count", n)
			}
		}
	}
}
