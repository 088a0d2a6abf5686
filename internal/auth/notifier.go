// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"context"
	"log/slog"
)

// ApprovalNotifier delivers approval requests for new registrations to an
// administrator, typically as a one-click link built from the token.
type ApprovalNotifier interface {
	NotifyPendingApproval(ctx context.Context, account *Account, approvalToken string) error
}

// LogNotifier records pending registrations in the log. The token itself is
// not logged; an operator reissues it with the approval-token command.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyPendingApproval logs the pending account.
func (n *LogNotifier) NotifyPendingApproval(ctx context.Context, account *Account, _ string) error {
	n.logger.InfoContext(ctx, "registration pending approval",
		"account_id", account.ID,
		"role", account.Role,
	)
	return nil
}
