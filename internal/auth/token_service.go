// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultAccessTTL        = 15 * time.Minute
	DefaultApprovalTTL      = 24 * time.Hour
	DefaultIssuer           = "internhub"
	DefaultAudience         = "internhub-app"
	DefaultApprovalAudience = "internhub-approval"
)

// TokenConfig configures token signing and lifetimes.
type TokenConfig struct {
	Secret           string
	ApprovalSecret   string
	Issuer           string
	Audience         string
	ApprovalAudience string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ApprovalTTL      time.Duration
}

// DefaultTokenConfig returns a TokenConfig with default claims and lifetimes and no secrets.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:           DefaultIssuer,
		Audience:         DefaultAudience,
		ApprovalAudience: DefaultApprovalAudience,
		AccessTTL:        DefaultAccessTTL,
		RefreshTTL:       DefaultRefreshTTL,
		ApprovalTTL:      DefaultApprovalTTL,
	}
}

func (c TokenConfig) withDefaults() TokenConfig {
	d := DefaultTokenConfig()
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.Audience == "" {
		c.Audience = d.Audience
	}
	if c.ApprovalAudience == "" {
		c.ApprovalAudience = d.ApprovalAudience
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = d.AccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = d.RefreshTTL
	}
	if c.ApprovalTTL <= 0 {
		c.ApprovalTTL = d.ApprovalTTL
	}
	return c
}

// TokenService issues and verifies access, refresh, and approval tokens.
type TokenService struct {
	cfg     TokenConfig
	refresh RefreshTokenRepository
	now     func() time.Time
	logger  *slog.Logger

	accessParser   *jwt.Parser
	approvalParser *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithTokenLogger sets the logger for verification diagnostics.
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(s *TokenService) {
		s.logger = logger
	}
}

// NewTokenService creates a TokenService. A missing signing secret is a
// startup error with code AUTH_SIGNING_FAILED.
func NewTokenService(cfg TokenConfig, refresh RefreshTokenRepository, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, oops.Code(CodeSigningFailed).Errorf("token signing secret is not configured")
	}
	if refresh == nil {
		return nil, oops.Code("TOKEN_SERVICE_INVALID").Errorf("refresh token repository is required")
	}

	s := &TokenService{
		cfg:     cfg.withDefaults(),
		refresh: refresh,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.ApprovalSecret == "" {
		s.logger.Warn("approval token secret not configured, falling back to the access token secret")
		s.cfg.ApprovalSecret = s.cfg.Secret
	}

	s.accessParser = s.newParser(s.cfg.Audience)
	s.approvalParser = s.newParser(s.cfg.ApprovalAudience)
	return s, nil
}

func (s *TokenService) newParser(audience string) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

// IssueAccessToken signs an access token for the subject.
func (s *TokenService) IssueAccessToken(subjectID string, role Role) (string, error) {
	if subjectID == "" || !role.Valid() {
		return "", oops.Code(CodeInvalidInput).
			With("role", role).
			Errorf("access token requires a subject and a valid role")
	}

	now := s.now()
	claims := AccessClaims{
		Role: role,
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	return s.sign(claims, s.cfg.Secret)
}

// VerifyAccessToken checks signature, expiry, issuer, audience, and type.
// Every failure is reported as AUTH_INVALID_CREDENTIALS.
func (s *TokenService) VerifyAccessToken(signed string) (*AccessClaims, error) {
	if signed == "" {
		return nil, errMissingCredential()
	}

	claims := &AccessClaims{}
	if _, err := s.accessParser.ParseWithClaims(signed, claims, s.keyFunc(s.cfg.Secret)); err != nil {
		return nil, s.rejected("access", err)
	}
	if claims.Type != TokenTypeAccess {
		return nil, s.rejected("access", errors.New("wrong token type"))
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, s.rejected("access", errors.New("missing subject or role"))
	}
	return claims, nil
}

// IssueRefreshToken generates and persists a refresh token for the subject.
// The raw value is returned once and never stored.
func (s *TokenService) IssueRefreshToken(ctx context.Context, subjectID string, role Role) (string, *RefreshToken, error) {
	raw, record, err := s.newRefreshToken(subjectID, role)
	if err != nil {
		return "", nil, err
	}
	if err := s.refresh.Create(ctx, record); err != nil {
		return "", nil, oops.Code("REFRESH_TOKEN_STORE_FAILED").
			With("operation", "persist refresh token").
			With("subject_id", subjectID).
			Wrap(err)
	}
	return raw, record, nil
}

func (s *TokenService) newRefreshToken(subjectID string, role Role) (string, *RefreshToken, error) {
	if subjectID == "" || !role.Valid() {
		return "", nil, oops.Code(CodeInvalidInput).
			With("role", role).
			Errorf("refresh token requires a subject and a valid role")
	}
	raw, hash, err := GenerateRefreshToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	return raw, &RefreshToken{
		TokenHash: hash,
		SubjectID: subjectID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		Active:    true,
	}, nil
}

// VerifyRefreshToken returns the stored record if the token is active and unexpired.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, raw string) (*RefreshToken, error) {
	if raw == "" {
		return nil, errMissingCredential()
	}
	if len(raw) != refreshTokenHexLen {
		return nil, s.rejected("refresh", errors.New("malformed token"))
	}

	record, err := s.refresh.GetByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.rejected("refresh", errors.New("unknown token"))
		}
		return nil, oops.Code("REFRESH_TOKEN_LOOKUP_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	if !record.Active {
		return nil, s.rejected("refresh", errors.New("token inactive"))
	}
	if !record.UsableAt(s.now()) {
		return nil, s.rejected("refresh", errors.New("token expired"))
	}
	return record, nil
}

// RotateRefreshToken exchanges a usable refresh token for a new one. The old
// record is deactivated in the same store operation that persists its
// successor, so concurrent rotations of one token yield one successor.
func (s *TokenService) RotateRefreshToken(ctx context.Context, oldRaw string) (string, *RefreshToken, error) {
	old, err := s.VerifyRefreshToken(ctx, oldRaw)
	if err != nil {
		return "", nil, err
	}

	raw, next, err := s.newRefreshToken(old.SubjectID, old.Role)
	if err != nil {
		return "", nil, err
	}

	rotated, err := s.refresh.Rotate(ctx, old.TokenHash, s.now(), next)
	if err != nil {
		return "", nil, oops.Code("REFRESH_TOKEN_ROTATE_FAILED").
			With("operation", "rotate refresh token").
			With("subject_id", old.SubjectID).
			Wrap(err)
	}
	if !rotated {
		return "", nil, s.rejected("refresh", errors.New("token already rotated"))
	}
	return raw, next, nil
}

// Revoke deactivates a refresh token. Unknown or already revoked tokens are a no-op.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if err := s.refresh.Deactivate(ctx, HashRefreshToken(raw)); err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "deactivate refresh token").
			Wrap(err)
	}
	return nil
}

// RevokeAll deactivates every refresh token of the subject.
func (s *TokenService) RevokeAll(ctx context.Context, subjectID string, role Role) error {
	if err := s.refresh.DeactivateAll(ctx, subjectID, role); err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "deactivate all refresh tokens").
			With("subject_id", subjectID).
			With("role", role).
			Wrap(err)
	}
	return nil
}

// PurgeExpired deletes expired refresh token records.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.refresh.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

// IssueApprovalToken signs a registration approval token for a pending account.
func (s *TokenService) IssueApprovalToken(pendingID string, accountType Role) (string, error) {
	if pendingID == "" || !accountType.Valid() {
		return "", oops.Code(CodeInvalidInput).
			With("account_type", accountType).
			Errorf("approval token requires an account id and a valid account type")
	}

	now := s.now()
	claims := ApprovalClaims{
		AccountType: accountType,
		Action:      ApprovalAction,
		Type:        TokenTypeApproval,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pendingID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.ApprovalAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ApprovalTTL)),
		},
	}
	return s.sign(claims, s.cfg.ApprovalSecret)
}

// VerifyApprovalToken checks an approval token and returns its claims.
func (s *TokenService) VerifyApprovalToken(signed string) (*ApprovalClaims, error) {
	if signed == "" {
		return nil, errMissingCredential()
	}

	claims := &ApprovalClaims{}
	if _, err := s.approvalParser.ParseWithClaims(signed, claims, s.keyFunc(s.cfg.ApprovalSecret)); err != nil {
		return nil, s.rejected("approval", err)
	}
	if claims.Type != TokenTypeApproval || claims.Action != ApprovalAction {
		return nil, s.rejected("approval", errors.New("wrong token type or action"))
	}
	if claims.Subject == "" || !claims.AccountType.Valid() {
		return nil, s.rejected("approval", errors.New("missing subject or account type"))
	}
	return claims, nil
}

func (s *TokenService) sign(claims jwt.Claims, secret string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", oops.Code(CodeSigningFailed).Wrap(err)
	}
	return signed, nil
}

func (s *TokenService) keyFunc(secret string) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}
}

// rejected logs the internal reason and returns the uniform invalid error.
func (s *TokenService) rejected(kind string, cause error) error {
	reason := rejectionReason(cause)
	s.logger.Debug("token rejected", "kind", kind, "reason", reason)
	return errInvalidCredentials(reason)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "audience_or_issuer"
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	default:
		return err.Error()
	}
}
