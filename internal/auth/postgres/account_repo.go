// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

const accountColumns = `id, role, identifier, credential_hash, approved, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// GetByID retrieves an account by role and ID.
func (r *AccountRepository) GetByID(ctx context.Context, role auth.Role, id string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE role = $1 AND id = $2
	`, role.String(), id)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("role", role.String()).
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id).
			Wrap(err)
	}
	return account, nil
}

// GetByIdentifier retrieves an account by role and normalized login identifier.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, role auth.Role, identifier string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE role = $1 AND identifier = $2
	`, role.String(), auth.NormalizeIdentifier(identifier))

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("role", role.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by identifier").
			Wrap(err)
	}
	return account, nil
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID,
		account.Role.String(),
		account.Identifier,
		account.CredentialHash,
		account.Approved,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_EXISTS").
			With("role", account.Role.String()).
			Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID).
			Wrap(err)
	}
	return nil
}

// UpdateCredential replaces the stored credential hash.
func (r *AccountRepository) UpdateCredential(ctx context.Context, role auth.Role, id, credentialHash string) error {
	return r.update(ctx, "update credential", `
		UPDATE accounts SET credential_hash = $3, updated_at = NOW()
		WHERE role = $1 AND id = $2
	`, role, id, credentialHash)
}

// SetApproved sets the approval flag.
func (r *AccountRepository) SetApproved(ctx context.Context, role auth.Role, id string, approved bool) error {
	return r.update(ctx, "set approved", `
		UPDATE accounts SET approved = $3, updated_at = NOW()
		WHERE role = $1 AND id = $2
	`, role, id, approved)
}

func (r *AccountRepository) update(ctx context.Context, operation, sql string, role auth.Role, id string, value any) error {
	result, err := r.pool.Exec(ctx, sql, role.String(), id, value)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("role", role.String()).
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account auth.Account
		role    string
	)
	if err := row.Scan(
		&account.ID,
		&role,
		&account.Identifier,
		&account.CredentialHash,
		&account.Approved,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("role", role).Errorf("unknown role in row: %v", err)
	}
	account.Role = parsed
	return &account, nil
}
