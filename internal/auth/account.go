// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account is a student or company login. Role is the variant tag.
type Account struct {
	ID             string
	Role           Role
	Identifier     string
	CredentialHash string `json:"-"`
	Approved       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount creates a validated, unapproved Account with a fresh ID.
func NewAccount(role Role, identifier, credentialHash string) (*Account, error) {
	if !role.Valid() {
		return nil, oops.Code(CodeInvalidInput).With("role", role).Errorf("invalid role")
	}
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("identifier cannot be empty")
	}
	if credentialHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("credential hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Account{
		ID:             ulid.Make().String(),
		Role:           role,
		Identifier:     identifier,
		CredentialHash: credentialHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Identity returns the minimal request identity for the account.
func (a *Account) Identity() Identity {
	return Identity{ID: a.ID, Role: a.Role}
}

// NormalizeIdentifier trims whitespace and lowercases the login name.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Identity is the only data attached to an authenticated request.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// GetByID returns ErrNotFound if no account of the role has the ID.
	GetByID(ctx context.Context, role Role, id string) (*Account, error)

	// GetByIdentifier returns ErrNotFound if no account of the role has the identifier.
	GetByIdentifier(ctx context.Context, role Role, identifier string) (*Account, error)

	// Create returns ErrAlreadyExists if the (role, identifier) pair is taken.
	Create(ctx context.Context, account *Account) error

	// UpdateCredential replaces the stored hash. Returns ErrNotFound if missing.
	UpdateCredential(ctx context.Context, role Role, id, credentialHash string) error

	// SetApproved sets the approval flag. Returns ErrNotFound if missing.
	SetApproved(ctx context.Context, role Role, id string, approved bool) error
}
