// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Refresh token configuration.
const (
	RefreshTokenBytes  = 32                 // 32 bytes = 64 hex chars
	DefaultRefreshTTL  = 7 * 24 * time.Hour // 7 day expiry
	refreshTokenHexLen = RefreshTokenBytes * 2
)

// RefreshToken is the persisted record of an issued refresh token.
// Only the digest of the raw value is stored.
type RefreshToken struct {
	TokenHash string    `json:"tokenHash"`
	SubjectID string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Active    bool      `json:"isActive"`
}

// UsableAt reports whether the record can authorize a refresh at t.
func (r *RefreshToken) UsableAt(t time.Time) bool {
	return r.Active && t.Before(r.ExpiresAt)
}

// GenerateRefreshToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateRefreshToken() (token, hash string, err error) {
	tokenBytes := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA256 digest of a raw refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new record and prunes the subject's inactive or expired records.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByHash returns ErrNotFound if no record has the digest.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate deactivates the record with oldHash only if it is still usable at
	// now, and stores next in the same critical section. It returns false
	// without storing next when the old record was missing, inactive, or
	// expired.
	Rotate(ctx context.Context, oldHash string, now time.Time, next *RefreshToken) (bool, error)

	// Deactivate marks the record inactive. Unknown digests are not an error.
	Deactivate(ctx context.Context, tokenHash string) error

	// DeactivateAll marks every record of the subject inactive.
	DeactivateAll(ctx context.Context, subjectID string, role Role) error

	// DeleteExpired removes records that expired before now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
