//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/internal/auth/postgres"
	"github.com/internhub/internhub/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("internhub"),
		tcpostgres.WithUsername("internhub"),
		tcpostgres.WithPassword("internhub"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer container.Terminate(ctx) //nolint:errcheck // best-effort cleanup

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
		return 1
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	_ = migrator.Close() //nolint:errcheck // schema is applied

	testPool, err = store.Connect(ctx, connStr, store.DefaultConnectOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer testPool.Close()

	return m.Run()
}

func createAccount(ctx context.Context, t *testing.T, role auth.Role, identifier string) *auth.Account {
	t.Helper()
	account, err := auth.NewAccount(role, identifier, "$2a$04$placeholderplaceholderplaceholderplaceholderplace")
	require.NoError(t, err)
	require.NoError(t, postgres.NewAccountRepository(testPool).Create(ctx, account))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID)
		_, _ = testPool.Exec(ctx, `DELETE FROM refresh_tokens WHERE subject_id = $1`, account.ID)
	})
	return account
}

func TestAccountRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)

	t.Run("round trips an account", func(t *testing.T) {
		account := createAccount(ctx, t, auth.RoleCompany, "talent@acme.test")

		got, err := repo.GetByIdentifier(ctx, auth.RoleCompany, "Talent@ACME.test")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
		assert.False(t, got.Approved)
		assert.WithinDuration(t, account.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("identifiers are unique per role only", func(t *testing.T) {
		createAccount(ctx, t, auth.RoleStudent, "shared")
		createAccount(ctx, t, auth.RoleCompany, "shared")

		dup, err := auth.NewAccount(auth.RoleStudent, "shared", "hash")
		require.NoError(t, err)
		err = repo.Create(ctx, dup)
		assert.ErrorIs(t, err, auth.ErrAlreadyExists)
	})

	t.Run("lookups are scoped by role", func(t *testing.T) {
		account := createAccount(ctx, t, auth.RoleStudent, "900100")

		_, err := repo.GetByID(ctx, auth.RoleCompany, account.ID)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("updates credential and approval", func(t *testing.T) {
		account := createAccount(ctx, t, auth.RoleStudent, "900200")

		require.NoError(t, repo.UpdateCredential(ctx, auth.RoleStudent, account.ID, "rotated-hash"))
		require.NoError(t, repo.SetApproved(ctx, auth.RoleStudent, account.ID, true))

		got, err := repo.GetByID(ctx, auth.RoleStudent, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "rotated-hash", got.CredentialHash)
		assert.True(t, got.Approved)
		assert.True(t, got.UpdatedAt.After(account.UpdatedAt) || got.UpdatedAt.Equal(account.UpdatedAt))
	})

	t.Run("updates of a missing account report not found", func(t *testing.T) {
		err := repo.SetApproved(ctx, auth.RoleStudent, "missing", true)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestRefreshTokenRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRefreshTokenRepository(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	newToken := func(subject string, created time.Time, ttl time.Duration) *auth.RefreshToken {
		_, hash, err := auth.GenerateRefreshToken()
		require.NoError(t, err)
		return &auth.RefreshToken{
			TokenHash: hash,
			SubjectID: subject,
			Role:      auth.RoleStudent,
			CreatedAt: created,
			ExpiresAt: created.Add(ttl),
			Active:    true,
		}
	}

	t.Run("create prunes dead records of the subject", func(t *testing.T) {
		account := createAccount(ctx, t, auth.RoleStudent, "910000")
		expired := newToken(account.ID, now.Add(-48*time.Hour), time.Hour)
		revoked := newToken(account.ID, now.Add(-time.Hour), 24*time.Hour)
		live := newToken(account.ID, now.Add(-time.Hour), 24*time.Hour)
		require.NoError(t, repo.Create(ctx, expired))
		require.NoError(t, repo.Create(ctx, revoked))
		require.NoError(t, repo.Create(ctx, live))
		require.NoError(t, repo.Deactivate(ctx, revoked.TokenHash))

		require.NoError(t, repo.Create(ctx, newToken(account.ID, now, 24*time.Hour)))

		_, err := repo.GetByHash(ctx, expired.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByHash(ctx, revoked.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		got, err := repo.GetByHash(ctx, live.TokenHash)
		require.NoError(t, err)
		assert.True(t, got.Active)
	})

	t.Run("only one concurrent rotation wins", func(t *testing.T) {
		account := createAccount(ctx, t, auth.RoleStudent, "920000")
		old := newToken(account.ID, now, time.Hour)
		require.NoError(t, repo.Create(ctx, old))

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Rotate(ctx, old.TokenHash, now, newToken(account.ID, now, time.Hour))
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)

		var active int
		require.NoError(t, testPool.QueryRow(ctx,
			`SELECT COUNT(*) FROM refresh_tokens WHERE subject_id = $1 AND is_active`, account.ID).Scan(&active))
		assert.Equal(t, 1, active)
	})

	t.Run("expired records do not rotate and are purged", func(t *testing.T) {
		account := createAccount(ctx, t, auth.RoleStudent, "930000")
		old := newToken(account.ID, now.Add(-2*time.Hour), time.Hour)
		require.NoError(t, repo.Create(ctx, old))

		ok, err := repo.Rotate(ctx, old.TokenHash, now, newToken(account.ID, now, time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
	})

	t.Run("deactivate all leaves other subjects alone", func(t *testing.T) {
		a := createAccount(ctx, t, auth.RoleStudent, "940000")
		b := createAccount(ctx, t, auth.RoleStudent, "940001")
		ta := newToken(a.ID, now, time.Hour)
		tb := newToken(b.ID, now, time.Hour)
		require.NoError(t, repo.Create(ctx, ta))
		require.NoError(t, repo.Create(ctx, tb))

		require.NoError(t, repo.DeactivateAll(ctx, a.ID, auth.RoleStudent))

		got, err := repo.GetByHash(ctx, ta.TokenHash)
		require.NoError(t, err)
		assert.False(t, got.Active)
		got, err = repo.GetByHash(ctx, tb.TokenHash)
		require.NoError(t, err)
		assert.True(t, got.Active)
	})
}

func TestService_Integration(t *testing.T) {
	ctx := context.Background()
	tokens, err := auth.NewTokenService(
		auth.TokenConfig{Secret: "q7#Nw2!Lp9@Zx4$Rt6^Vb1&Hm8*Kd3%J"},
		postgres.NewRefreshTokenRepository(testPool))
	require.NoError(t, err)
	svc, err := auth.NewService(postgres.NewAccountRepository(testPool), tokens, auth.NewBcryptHasher(bcrypt.MinCost))
	require.NoError(t, err)

	account, err := svc.Register(ctx, auth.RoleCompany, "hiring@globex.test", "Tr0ub4dor&3")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID)
		_, _ = testPool.Exec(ctx, `DELETE FROM refresh_tokens WHERE subject_id = $1`, account.ID)
	})

	_, err = svc.Login(ctx, auth.RoleCompany, "hiring@globex.test", "Tr0ub4dor&3")
	assert.Equal(t, auth.CodeAccountNotVerified, auth.Code(err))

	approval, err := svc.ApprovalToken(ctx, auth.RoleCompany, account.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, approval)
	require.NoError(t, err)

	login, err := svc.Login(ctx, auth.RoleCompany, "hiring@globex.test", "Tr0ub4dor&3")
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, login.AccessToken, auth.RoleCompany)
	require.NoError(t, err)
	assert.Equal(t, account.ID, id.ID)

	pair, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.Equal(t, auth.CodeInvalidCredentials, auth.Code(err))

	require.NoError(t, svc.ChangeCredential(ctx, pair.AccessToken, "Tr0ub4dor&3", "C0rrect-Horse!9"))
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Equal(t, auth.CodeInvalidCredentials, auth.Code(err))
}
