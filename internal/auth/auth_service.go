// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/internhub/internhub/pkg/errutil"
)

const tracerName = "github.com/internhub/internhub/internal/auth"

// TokenPair is an access token with the refresh token that can renew it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	TokenPair
	Identity Identity
}

// Service provides authentication operations.
type Service struct {
	accounts AccountRepository
	tokens   *TokenService
	hasher   PasswordHasher
	notifier ApprovalNotifier
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	// dummyHash is verified when an account doesn't exist so that unknown
	// identifiers cost the same as wrong passwords.
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics the service records to.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier sets the notifier for pending registrations.
func WithNotifier(n ApprovalNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) {
		s.tracer = t
	}
}

// NewService creates a new Service.
func NewService(accounts AccountRepository, tokens *TokenService, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("account repository is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token service is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}

	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		hasher:   hasher,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}

	dummy, err := newDummyHash(hasher)
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// newDummyHash hashes an unguessable value at the hasher's current cost.
func newDummyHash(hasher PasswordHasher) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("AUTH_SERVICE_INVALID").With("operation", "crypto/rand.Read").Wrap(err)
	}
	hash, err := hasher.Hash(hex.EncodeToString(b))
	if err != nil {
		return "", oops.Code("AUTH_SERVICE_INVALID").With("operation", "hash dummy password").Wrap(err)
	}
	return hash, nil
}

// Tokens returns the token service.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
	}
	span.End()
}

// Login verifies credentials and issues a token pair.
// Uses constant-time operations to prevent timing-based identifier enumeration.
func (s *Service) Login(ctx context.Context, role Role, identifier, password string) (result *LoginResult, err error) {
	ctx, span := s.startSpan(ctx, "Login", attribute.String("role", role.String()))
	defer func() {
		s.metrics.login(err)
		endSpan(span, err)
	}()

	if !role.Valid() {
		return nil, oops.Code(CodeInvalidInput).With("role", role).Errorf("invalid role")
	}
	if identifier == "" || password == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("identifier and password are required")
	}

	account, lookupErr := s.accounts.GetByIdentifier(ctx, role, NormalizeIdentifier(identifier))

	targetHash := s.dummyHash
	accountExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by identifier").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.CredentialHash
		accountExists = true
	}

	// Always verify, even against the dummy hash.
	start := time.Now()
	valid := s.hasher.Verify(password, targetHash)
	s.metrics.observeHash(start)

	if !accountExists || !valid {
		return nil, errInvalidCredentials("unknown identifier or wrong password")
	}

	// Approval is checked after verification so pending accounts leak nothing
	// to someone without the password.
	if !account.Approved {
		return nil, oops.Code(CodeAccountNotVerified).
			With("account_id", account.ID).
			Errorf("account is pending administrative approval")
	}

	if s.hasher.NeedsRehash(account.CredentialHash) {
		s.rehash(ctx, account, password)
	}

	pair, err := s.issuePair(ctx, account.Identity())
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID, "role", account.Role)
	return &LoginResult{TokenPair: *pair, Identity: account.Identity()}, nil
}

// rehash upgrades a stored hash to the current cost. Failures are logged and
// the login still succeeds.
func (s *Service) rehash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "account_id", account.ID, "error", err)
		return
	}
	if err := s.accounts.UpdateCredential(ctx, account.Role, account.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "persisting rehashed password failed", "account_id", account.ID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID)
}

func (s *Service) issuePair(ctx context.Context, id Identity) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(id.ID, id.Role)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(ctx, id.ID, id.Role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// always rotated out.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Refresh")
	defer func() {
		s.metrics.refresh(err)
		endSpan(span, err)
	}()

	record, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolve(ctx, record.Role, record.SubjectID); err != nil {
		return nil, err
	}

	raw, next, err := s.tokens.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccessToken(next.SubjectID, next.Role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

// Logout revokes the caller's refresh token, or all of the caller's refresh
// tokens when refreshToken is empty. A refresh token owned by someone else
// is left alone.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) (err error) {
	ctx, span := s.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	id, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}

	if refreshToken == "" {
		if err := s.tokens.RevokeAll(ctx, id.ID, id.Role); err != nil {
			return err
		}
		s.metrics.revocation("all")
		s.logger.InfoContext(ctx, "logged out of all sessions", "account_id", id.ID)
		return nil
	}

	record, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		if Code(err) == CodeInvalidCredentials {
			return nil
		}
		return err
	}
	if record.SubjectID != id.ID || record.Role != id.Role {
		s.logger.WarnContext(ctx, "logout with a refresh token owned by another account", "account_id", id.ID)
		return nil
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.metrics.revocation("single")
	return nil
}

// ChangeCredential replaces the caller's password and revokes every refresh
// token they hold.
func (s *Service) ChangeCredential(ctx context.Context, accessToken, oldPassword, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, "ChangeCredential")
	defer func() { endSpan(span, err) }()

	id, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if oldPassword == "" || newPassword == "" {
		return oops.Code(CodeInvalidInput).Errorf("current and new password are required")
	}

	account, err := s.resolve(ctx, id.Role, id.ID)
	if err != nil {
		return err
	}

	start := time.Now()
	valid := s.hasher.Verify(oldPassword, account.CredentialHash)
	s.metrics.observeHash(start)
	if !valid {
		return errInvalidCredentials("wrong current password")
	}

	if err := checkStrength(newPassword); err != nil {
		return err
	}

	start = time.Now()
	newHash, err := s.hasher.Hash(newPassword)
	s.metrics.observeHash(start)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdateCredential(ctx, account.Role, account.ID, newHash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update credential").
			With("account_id", account.ID).
			Wrap(err)
	}

	if err := s.tokens.RevokeAll(ctx, account.ID, account.Role); err != nil {
		return err
	}
	s.metrics.revocation("all")
	s.logger.InfoContext(ctx, "password changed", "account_id", account.ID)
	return nil
}

// Authenticate resolves an access token to the identity of an approved,
// existing account whose role is in allowed. An empty allowed list admits
// every role.
func (s *Service) Authenticate(ctx context.Context, accessToken string, allowed ...Role) (id Identity, err error) {
	defer func() { s.metrics.authentication(err) }()

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return Identity{}, err
	}
	if len(allowed) > 0 && !slices.Contains(allowed, claims.Role) {
		return Identity{}, oops.Code(CodeForbidden).
			With("role", claims.Role).
			Errorf("role is not permitted for this operation")
	}

	account, err := s.resolve(ctx, claims.Role, claims.Subject)
	if err != nil {
		return Identity{}, err
	}
	return account.Identity(), nil
}

// resolve loads the current account and enforces the approval gate.
func (s *Service) resolve(ctx context.Context, role Role, id string) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidCredentials("account no longer exists")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get account by id").
			With("account_id", id).
			Wrap(err)
	}
	if !account.Approved {
		return nil, oops.Code(CodeAccountNotVerified).
			With("account_id", account.ID).
			Errorf("account is not approved")
	}
	return account, nil
}

// Problems returns the password policy problems attached to an
// AUTH_INVALID_INPUT error, if any.
func Problems(err error) []string {
	return errutil.Problems(err)
}

func checkStrength(password string) error {
	res := ValidateStrength(password)
	if res.Valid {
		return nil
	}
	return oops.Code(CodeInvalidInput).
		With(errutil.ProblemsKey, res.Errors).
		Errorf("password does not meet the password policy")
}
