// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package filestore

import (
	"context"
	"time"

	"github.com/internhub/internhub/internal/auth"
)

// Compile-time interface check.
var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// tokenRecord is the on-disk refresh token shape. Subject ids and role
// tags written by the previous store are accepted on read.
type tokenRecord struct {
	TokenHash string    `json:"tokenHash"`
	UserID    flexID    `json:"userId"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`
}

func fromRefreshToken(t *auth.RefreshToken) tokenRecord {
	return tokenRecord{
		TokenHash: t.TokenHash,
		UserID:    flexID(t.SubjectID),
		Role:      t.Role.String(),
		CreatedAt: t.CreatedAt.UTC(),
		ExpiresAt: t.ExpiresAt.UTC(),
		IsActive:  t.Active,
	}
}

func (t tokenRecord) toRefreshToken() *auth.RefreshToken {
	role, err := auth.ParseRole(t.Role)
	if err != nil {
		role = auth.Role(t.Role)
	}
	return &auth.RefreshToken{
		TokenHash: t.TokenHash,
		SubjectID: string(t.UserID),
		Role:      role,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
		Active:    t.IsActive,
	}
}

func (t tokenRecord) belongsTo(subjectID string, role auth.Role) bool {
	r, err := auth.ParseRole(t.Role)
	return err == nil && r == role && idMatches(string(t.UserID), subjectID)
}

func (t tokenRecord) usableAt(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt)
}

// RefreshTokenRepository implements auth.RefreshTokenRepository on a Store.
type RefreshTokenRepository struct {
	store *Store
}

// NewRefreshTokenRepository creates a new refresh token repository.
func NewRefreshTokenRepository(store *Store) *RefreshTokenRepository {
	return &RefreshTokenRepository{store: store}
}

// prune drops the subject's inactive or expired records.
func prune(tokens []tokenRecord, subjectID string, role auth.Role, now time.Time) []tokenRecord {
	kept := tokens[:0]
	for _, t := range tokens {
		if t.belongsTo(subjectID, role) && !t.usableAt(now) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

func indexOf(tokens []tokenRecord, hash string) int {
	for i := range tokens {
		if tokens[i].TokenHash == hash {
			return i
		}
	}
	return -1
}

// Create stores a refresh token and prunes the subject's dead records.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	return r.store.update(ctx, func(doc *document) (bool, error) {
		doc.tokens = prune(doc.tokens, token.SubjectID, token.Role, r.store.now())
		doc.tokens = append(doc.tokens, fromRefreshToken(token))
		return true, nil
	})
}

// GetByHash retrieves a refresh token by digest.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var token *auth.RefreshToken
	err := r.store.view(ctx, func(doc *document) error {
		i := indexOf(doc.tokens, tokenHash)
		if i < 0 {
			return auth.ErrNotFound
		}
		token = doc.tokens[i].toRefreshToken()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Rotate deactivates oldHash and stores next under one write lock.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, now time.Time, next *auth.RefreshToken) (bool, error) {
	rotated := false
	err := r.store.update(ctx, func(doc *document) (bool, error) {
		i := indexOf(doc.tokens, oldHash)
		if i < 0 || !doc.tokens[i].usableAt(now) {
			return false, nil
		}
		doc.tokens[i].IsActive = false
		doc.tokens = append(doc.tokens, fromRefreshToken(next))
		rotated = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return rotated, nil
}

// Deactivate marks a refresh token inactive. Unknown digests are ignored.
func (r *RefreshTokenRepository) Deactivate(ctx context.Context, tokenHash string) error {
	return r.store.update(ctx, func(doc *document) (bool, error) {
		i := indexOf(doc.tokens, tokenHash)
		if i < 0 || !doc.tokens[i].IsActive {
			return false, nil
		}
		doc.tokens[i].IsActive = false
		return true, nil
	})
}

// DeactivateAll marks every refresh token of the subject inactive.
func (r *RefreshTokenRepository) DeactivateAll(ctx context.Context, subjectID string, role auth.Role) error {
	return r.store.update(ctx, func(doc *document) (bool, error) {
		changed := false
		for i := range doc.tokens {
			if doc.tokens[i].belongsTo(subjectID, role) && doc.tokens[i].IsActive {
				doc.tokens[i].IsActive = false
				changed = true
			}
		}
		return changed, nil
	})
}

// DeleteExpired removes expired refresh tokens.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.store.update(ctx, func(doc *document) (bool, error) {
		kept := doc.tokens[:0]
		for _, t := range doc.tokens {
			if !now.Before(t.ExpiresAt) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		doc.tokens = kept
		return removed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
