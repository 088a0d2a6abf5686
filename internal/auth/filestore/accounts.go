// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package filestore

import (
	"context"

	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// AccountRepository implements auth.AccountRepository on a Store.
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

func toAccount(role auth.Role, l layout, r record) *auth.Account {
	return &auth.Account{
		ID:             r.str(fieldID),
		Role:           role,
		Identifier:     r.str(l.identifier),
		CredentialHash: r.str(l.secret),
		Approved:       r.flag(fieldApproved),
		CreatedAt:      r.timestamp(fieldCreatedAt),
		UpdatedAt:      r.timestamp(fieldUpdatedAt),
	}
}

// find returns the index of the first record of role matching pred, or -1.
func find(doc *document, role auth.Role, pred func(record) bool) int {
	for i, r := range doc.accounts[role] {
		if pred(r) {
			return i
		}
	}
	return -1
}

func byID(id string) func(record) bool {
	return func(r record) bool { return idMatches(r.str(fieldID), id) }
}

func byIdentifier(l layout, identifier string) func(record) bool {
	want := auth.NormalizeIdentifier(identifier)
	return func(r record) bool { return auth.NormalizeIdentifier(r.str(l.identifier)) == want }
}

func (r *AccountRepository) get(ctx context.Context, role auth.Role, match func(layout) func(record) bool) (*auth.Account, error) {
	l, err := layoutFor(role)
	if err != nil {
		return nil, err
	}
	var account *auth.Account
	err = r.store.view(ctx, func(doc *document) error {
		i := find(doc, role, match(l))
		if i < 0 {
			return auth.ErrNotFound
		}
		account = toAccount(role, l, doc.accounts[role][i])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetByID retrieves an account by role and ID.
func (r *AccountRepository) GetByID(ctx context.Context, role auth.Role, id string) (*auth.Account, error) {
	return r.get(ctx, role, func(layout) func(record) bool { return byID(id) })
}

// GetByIdentifier retrieves an account by role and login identifier.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, role auth.Role, identifier string) (*auth.Account, error) {
	return r.get(ctx, role, func(l layout) func(record) bool { return byIdentifier(l, identifier) })
}

// Create appends a new account record.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	l, err := layoutFor(account.Role)
	if err != nil {
		return err
	}
	return r.store.update(ctx, func(doc *document) (bool, error) {
		if find(doc, account.Role, byIdentifier(l, account.Identifier)) >= 0 || find(doc, account.Role, byID(account.ID)) >= 0 {
			return false, oops.Code("FILESTORE_ACCOUNT_EXISTS").
				With("role", account.Role).
				Wrap(auth.ErrAlreadyExists)
		}

		rec := record{}
		fields := map[string]any{
			fieldID:        account.ID,
			l.identifier:   account.Identifier,
			l.secret:       account.CredentialHash,
			fieldApproved:  account.Approved,
			fieldCreatedAt: account.CreatedAt.UTC(),
			fieldUpdatedAt: account.UpdatedAt.UTC(),
		}
		for k, v := range fields {
			if err := rec.set(k, v); err != nil {
				return false, err
			}
		}
		doc.accounts[account.Role] = append(doc.accounts[account.Role], rec)
		return true, nil
	})
}

// UpdateCredential replaces an account's password hash.
func (r *AccountRepository) UpdateCredential(ctx context.Context, role auth.Role, id, credentialHash string) error {
	return r.modify(ctx, role, id, func(l layout, rec record) error {
		return rec.set(l.secret, credentialHash)
	})
}

// SetApproved sets an account's approval flag.
func (r *AccountRepository) SetApproved(ctx context.Context, role auth.Role, id string, approved bool) error {
	return r.modify(ctx, role, id, func(_ layout, rec record) error {
		return rec.set(fieldApproved, approved)
	})
}

func (r *AccountRepository) modify(ctx context.Context, role auth.Role, id string, fn func(layout, record) error) error {
	l, err := layoutFor(role)
	if err != nil {
		return err
	}
	return r.store.update(ctx, func(doc *document) (bool, error) {
		i := find(doc, role, byID(id))
		if i < 0 {
			return false, auth.ErrNotFound
		}
		rec := doc.accounts[role][i]
		if err := fn(l, rec); err != nil {
			return false, err
		}
		if err := rec.set(fieldUpdatedAt, r.store.now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}
