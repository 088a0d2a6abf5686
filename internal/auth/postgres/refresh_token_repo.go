// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool poolIface
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool poolIface) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (token_hash, subject_id, role, created_at, expires_at, is_active)
	VALUES ($1, $2, $3, $4, $5, $6)
`

func insertArgs(t *auth.RefreshToken) []any {
	return []any{t.TokenHash, t.SubjectID, t.Role.String(), t.CreatedAt, t.ExpiresAt, t.Active}
}

// Create stores a refresh token. The subject's inactive or expired records
// are pruned in the same transaction, using the new record's creation time.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM refresh_tokens
			WHERE subject_id = $1 AND role = $2 AND (NOT is_active OR expires_at <= $3)
		`, token.SubjectID, token.Role.String(), token.CreatedAt); err != nil {
			return oops.With("operation", "prune refresh tokens").Wrap(err)
		}
		if _, err := tx.Exec(ctx, insertRefreshToken, insertArgs(token)...); err != nil {
			return oops.With("operation", "insert refresh token").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("subject_id", token.SubjectID).
			Wrap(err)
	}
	return nil
}

// GetByHash retrieves a refresh token by its digest.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var (
		token auth.RefreshToken
		role  string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT token_hash, subject_id, role, created_at, expires_at, is_active
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&token.TokenHash, &token.SubjectID, &role, &token.CreatedAt, &token.ExpiresAt, &token.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GET_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	if token.Role, err = auth.ParseRole(role); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CORRUPT").With("role", role).Errorf("unknown role in row: %v", err)
	}
	return &token, nil
}

// Rotate deactivates oldHash and inserts next in one transaction. The
// conditional UPDATE is the compare-and-swap: a concurrent rotation of the
// same record blocks on the row lock and then matches zero rows.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, now time.Time, next *auth.RefreshToken) (bool, error) {
	rotated := false
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE refresh_tokens SET is_active = FALSE
			WHERE token_hash = $1 AND is_active AND expires_at > $2
		`, oldHash, now)
		if err != nil {
			return oops.With("operation", "deactivate refresh token").Wrap(err)
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, insertRefreshToken, insertArgs(next)...); err != nil {
			return oops.With("operation", "insert refresh token").Wrap(err)
		}
		rotated = true
		return nil
	})
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_ROTATE_FAILED").
			With("subject_id", next.SubjectID).
			Wrap(err)
	}
	return rotated, nil
}

// Deactivate marks a refresh token inactive.
func (r *RefreshTokenRepository) Deactivate(ctx context.Context, tokenHash string) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_active = FALSE WHERE token_hash = $1
	`, tokenHash); err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "deactivate refresh token").
			Wrap(err)
	}
	return nil
}

// DeactivateAll marks every active refresh token of the subject inactive.
func (r *RefreshTokenRepository) DeactivateAll(ctx context.Context, subjectID string, role auth.Role) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_active = FALSE
		WHERE subject_id = $1 AND role = $2 AND is_active
	`, subjectID, role.String()); err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "deactivate subject refresh tokens").
			With("subject_id", subjectID).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes refresh tokens whose expiry is at or before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PURGE_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}
