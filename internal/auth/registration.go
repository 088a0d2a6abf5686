// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// Register creates an unapproved account and asks an administrator to
// approve it. The account cannot log in until approved.
func (s *Service) Register(ctx context.Context, role Role, identifier, password string) (account *Account, err error) {
	ctx, span := s.startSpan(ctx, "Register", attribute.String("role", role.String()))
	defer func() { endSpan(span, err) }()

	if !role.Valid() {
		return nil, oops.Code(CodeInvalidInput).With("role", role).Errorf("invalid role")
	}
	if err := checkStrength(password); err != nil {
		return nil, err
	}

	start := time.Now()
	hash, err := s.hasher.Hash(password)
	s.metrics.observeHash(start)
	if err != nil {
		return nil, err
	}

	account, err = NewAccount(role, identifier, hash)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code(CodeAccountExists).
				With("role", role).
				Errorf("an account with this identifier already exists")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	token, err := s.tokens.IssueApprovalToken(account.ID, account.Role)
	if err != nil {
		return nil, err
	}
	// The account exists either way; an operator can reissue the token.
	if err := s.notifier.NotifyPendingApproval(ctx, account, token); err != nil {
		s.logger.WarnContext(ctx, "approval notification failed", "account_id", account.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID, "role", account.Role)
	return account, nil
}

// Approve consumes an approval token and marks its account approved.
func (s *Service) Approve(ctx context.Context, approvalToken string) (account *Account, err error) {
	ctx, span := s.startSpan(ctx, "Approve")
	defer func() { endSpan(span, err) }()

	claims, err := s.tokens.VerifyApprovalToken(approvalToken)
	if err != nil {
		return nil, err
	}
	return s.ApproveAccount(ctx, claims.AccountType, claims.Subject)
}

// ApproveAccount marks an account approved. Approval takes effect on the
// account's next authenticated request.
func (s *Service) ApproveAccount(ctx context.Context, role Role, id string) (*Account, error) {
	if err := s.setApproved(ctx, role, id, true); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, role, id)
	if err != nil {
		return nil, oops.Code("AUTH_APPROVE_FAILED").
			With("operation", "reload account").
			With("account_id", id).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "account approved", "account_id", id, "role", role)
	return account, nil
}

// RevokeApproval marks an account unapproved and revokes its refresh tokens.
// Outstanding access tokens stop working on their next use.
func (s *Service) RevokeApproval(ctx context.Context, role Role, id string) error {
	if err := s.setApproved(ctx, role, id, false); err != nil {
		return err
	}
	if err := s.tokens.RevokeAll(ctx, id, role); err != nil {
		return err
	}
	s.metrics.revocation("all")
	s.logger.InfoContext(ctx, "account approval revoked", "account_id", id, "role", role)
	return nil
}

// ApprovalToken reissues an approval token for a pending account.
func (s *Service) ApprovalToken(ctx context.Context, role Role, id string) (string, error) {
	account, err := s.accounts.GetByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code(CodeInvalidInput).
				With("account_id", id).
				With("role", role).
				Errorf("account not found")
		}
		return "", oops.Code("AUTH_LOOKUP_FAILED").With("account_id", id).Wrap(err)
	}
	if account.Approved {
		return "", oops.Code(CodeInvalidInput).
			With("account_id", id).
			Errorf("account is already approved")
	}
	return s.tokens.IssueApprovalToken(account.ID, account.Role)
}

func (s *Service) setApproved(ctx context.Context, role Role, id string, approved bool) error {
	if !role.Valid() || id == "" {
		return oops.Code(CodeInvalidInput).With("role", role).Errorf("valid role and account id are required")
	}
	if err := s.accounts.SetApproved(ctx, role, id, approved); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errInvalidCredentials("approval target no longer exists")
		}
		return oops.Code("AUTH_APPROVE_FAILED").
			With("operation", "set approval").
			With("account_id", id).
			Wrap(err)
	}
	return nil
}
