// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub/internal/auth"
)

const testSecret = "k9$Vq2#Lm7!xR4@pZ8&wT1^nB6*eJ3%h"

type accountKey struct {
	role auth.Role
	id   string
}

// memAccounts is an in-memory AccountRepository.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[accountKey]*auth.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[accountKey]*auth.Account)}
}

func (m *memAccounts) GetByID(_ context.Context, role auth.Role, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountKey{role, id}]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetByIdentifier(_ context.Context, role auth.Role, identifier string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.accounts {
		if k.role == role && a.Identifier == identifier {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAccounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.accounts {
		if k.role == account.Role && a.Identifier == account.Identifier {
			return auth.ErrAlreadyExists
		}
	}
	cp := *account
	m.accounts[accountKey{account.Role, account.ID}] = &cp
	return nil
}

func (m *memAccounts) UpdateCredential(_ context.Context, role auth.Role, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountKey{role, id}]
	if !ok {
		return auth.ErrNotFound
	}
	a.CredentialHash = hash
	return nil
}

func (m *memAccounts) SetApproved(_ context.Context, role auth.Role, id string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountKey{role, id}]
	if !ok {
		return auth.ErrNotFound
	}
	a.Approved = approved
	return nil
}

func (m *memAccounts) hash(role auth.Role, id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountKey{role, id}].CredentialHash
}

// memRefreshTokens is an in-memory RefreshTokenRepository.
type memRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken
}

func newMemRefreshTokens() *memRefreshTokens {
	return &memRefreshTokens{tokens: make(map[string]*auth.RefreshToken)}
}

func (m *memRefreshTokens) Create(_ context.Context, token *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.TokenHash] = &cp
	return nil
}

func (m *memRefreshTokens) GetByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memRefreshTokens) Rotate(_ context.Context, oldHash string, now time.Time, next *auth.RefreshToken) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldHash]
	if !ok || !old.UsableAt(now) {
		return false, nil
	}
	old.Active = false
	cp := *next
	m.tokens[next.TokenHash] = &cp
	return true, nil
}

func (m *memRefreshTokens) Deactivate(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok {
		t.Active = false
	}
	return nil
}

func (m *memRefreshTokens) DeactivateAll(_ context.Context, subjectID string, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.SubjectID == subjectID && t.Role == role {
			t.Active = false
		}
	}
	return nil
}

func (m *memRefreshTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, t := range m.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(m.tokens, h)
			n++
		}
	}
	return n, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTokenService(t *testing.T, repo auth.RefreshTokenRepository, clock *fakeClock) *auth.TokenService {
	t.Helper()
	cfg := auth.DefaultTokenConfig()
	cfg.Secret = testSecret
	cfg.ApprovalSecret = "approval-" + testSecret
	svc, err := auth.NewTokenService(cfg, repo, auth.WithClock(clock.Now))
	require.NoError(t, err)
	return svc
}

type testEnv struct {
	accounts *memAccounts
	refresh  *memRefreshTokens
	clock    *fakeClock
	hasher   *auth.BcryptHasher
	tokens   *auth.TokenService
	svc      *auth.Service
}

func newTestEnv(t *testing.T, opts ...auth.ServiceOption) *testEnv {
	t.Helper()
	env := &testEnv{
		accounts: newMemAccounts(),
		refresh:  newMemRefreshTokens(),
		clock:    newFakeClock(),
		hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
	}
	env.tokens = newTestTokenService(t, env.refresh, env.clock)
	svc, err := auth.NewService(env.accounts, env.tokens, env.hasher, opts...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

// addAccount stores an account with the given password and approval state.
func (e *testEnv) addAccount(t *testing.T, role auth.Role, identifier, password string, approved bool) *auth.Account {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	account, err := auth.NewAccount(role, identifier, hash)
	require.NoError(t, err)
	account.Approved = approved
	require.NoError(t, e.accounts.Create(context.Background(), account))
	return account
}
