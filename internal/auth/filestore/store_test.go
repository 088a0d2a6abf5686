// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package filestore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/internal/auth/filestore"
)

func readTop(path string) map[string]json.RawMessage {
	data, err := os.ReadFile(path)
	Expect(err).NotTo(HaveOccurred())
	var top map[string]json.RawMessage
	Expect(json.Unmarshal(data, &top)).To(Succeed())
	return top
}

func newToken(subject string, role auth.Role, created time.Time, ttl time.Duration) (string, *auth.RefreshToken) {
	raw, hash, err := auth.GenerateRefreshToken()
	Expect(err).NotTo(HaveOccurred())
	return raw, &auth.RefreshToken{
		TokenHash: hash,
		SubjectID: subject,
		Role:      role,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
		Active:    true,
	}
}

var _ = Describe("Store", func() {
	var (
		ctx  context.Context
		path string
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "data", "db.json")
	})

	Describe("Open", func() {
		It("creates an empty document", func() {
			_, err := filestore.Open(path)
			Expect(err).NotTo(HaveOccurred())

			top := readTop(path)
			Expect(top).To(HaveKey("estudiantes"))
			Expect(top).To(HaveKey("empresas"))
			Expect(string(top["refreshTokens"])).To(Equal("[]"))

			info, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("rejects a corrupt document", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
			Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())

			_, err := filestore.Open(path)
			Expect(err).To(MatchError(ContainSubstring("invalid character")))
		})

		It("rejects an empty path", func() {
			_, err := filestore.Open("")
			Expect(err).To(HaveOccurred())
		})
	})

	It("preserves keys owned by other subsystems", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
		Expect(os.WriteFile(path, []byte(`{"pasantias":[{"id":7,"titulo":"Go dev"}],"estudiantes":[]}`), 0o600)).To(Succeed())

		store, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		_, token := newToken("1", auth.RoleStudent, time.Now(), time.Hour)
		Expect(filestore.NewRefreshTokenRepository(store).Create(ctx, token)).To(Succeed())

		top := readTop(path)
		Expect(top["pasantias"]).To(MatchJSON(`[{"id":7,"titulo":"Go dev"}]`))
	})

	It("leaves the file untouched when the context is already cancelled", func() {
		store, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		before, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, token := newToken("1", auth.RoleStudent, time.Now(), time.Hour)
		err = filestore.NewRefreshTokenRepository(store).Create(cancelled, token)
		Expect(err).To(MatchError(context.Canceled))

		after, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
	})
})

var _ = Describe("AccountRepository", func() {
	var (
		ctx   context.Context
		path  string
		store *filestore.Store
		repo  *filestore.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "db.json")
		var err error
		store, err = filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		repo = filestore.NewAccountRepository(store)
	})

	It("creates and reads back an account", func() {
		account, err := auth.NewAccount(auth.RoleCompany, "HR@Acme.example", "$2a$04$hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, account)).To(Succeed())

		byID, err := repo.GetByID(ctx, auth.RoleCompany, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Identifier).To(Equal("hr@acme.example"))
		Expect(byID.CredentialHash).To(Equal("$2a$04$hash"))
		Expect(byID.Approved).To(BeFalse())

		byIdent, err := repo.GetByIdentifier(ctx, auth.RoleCompany, "hr@acme.example")
		Expect(err).NotTo(HaveOccurred())
		Expect(byIdent.ID).To(Equal(account.ID))

		var companies []map[string]any
		Expect(json.Unmarshal(readTop(path)["empresas"], &companies)).To(Succeed())
		Expect(companies).To(HaveLen(1))
		Expect(companies[0]).To(HaveKeyWithValue("correo", "hr@acme.example"))
		Expect(companies[0]).To(HaveKeyWithValue("contraseña", "$2a$04$hash"))
	})

	It("keeps roles apart", func() {
		account, err := auth.NewAccount(auth.RoleStudent, "12345", "h")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, account)).To(Succeed())

		_, err = repo.GetByID(ctx, auth.RoleCompany, account.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
		_, err = repo.GetByIdentifier(ctx, auth.RoleCompany, "12345")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("rejects a duplicate identifier", func() {
		first, err := auth.NewAccount(auth.RoleStudent, "12345", "h")
		Expect(err).NotTo(HaveOccurred())
		second, err := auth.NewAccount(auth.RoleStudent, " 12345 ", "h")
		Expect(err).NotTo(HaveOccurred())

		Expect(repo.Create(ctx, first)).To(Succeed())
		Expect(repo.Create(ctx, second)).To(MatchError(auth.ErrAlreadyExists))
	})

	It("updates the credential and approval flag", func() {
		account, err := auth.NewAccount(auth.RoleStudent, "12345", "old")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, account)).To(Succeed())

		Expect(repo.UpdateCredential(ctx, auth.RoleStudent, account.ID, "new")).To(Succeed())
		Expect(repo.SetApproved(ctx, auth.RoleStudent, account.ID, true)).To(Succeed())

		got, err := repo.GetByID(ctx, auth.RoleStudent, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CredentialHash).To(Equal("new"))
		Expect(got.Approved).To(BeTrue())
	})

	It("reports missing accounts", func() {
		Expect(repo.UpdateCredential(ctx, auth.RoleStudent, "nope", "x")).To(MatchError(auth.ErrNotFound))
		Expect(repo.SetApproved(ctx, auth.RoleStudent, "nope", true)).To(MatchError(auth.ErrNotFound))
	})

	It("reads records written by the previous store", func() {
		legacy := `{
		  "estudiantes": [{"id": 1700000000000, "email": "ana@uni.example", "legajo": "4521", "password": "$2a$04$x", "estadoValidacion": true}],
		  "empresas": [{"id": "e-1", "nombre": "Acme", "correo": "hr@acme.example", "contraseña": "$2a$04$y"}]
		}`
		Expect(os.WriteFile(path, []byte(legacy), 0o600)).To(Succeed())

		student, err := repo.GetByIdentifier(ctx, auth.RoleStudent, "4521")
		Expect(err).NotTo(HaveOccurred())
		Expect(student.ID).To(Equal("1700000000000"))
		Expect(student.Approved).To(BeTrue())

		Expect(repo.SetApproved(ctx, auth.RoleCompany, "e-1", true)).To(Succeed())

		var companies []map[string]any
		Expect(json.Unmarshal(readTop(path)["empresas"], &companies)).To(Succeed())
		Expect(companies[0]).To(HaveKeyWithValue("nombre", "Acme"))
		Expect(companies[0]).To(HaveKeyWithValue("estadoValidacion", true))

		var students []map[string]any
		Expect(json.Unmarshal(readTop(path)["estudiantes"], &students)).To(Succeed())
		Expect(students[0]).To(HaveKeyWithValue("email", "ana@uni.example"))
	})
})

var _ = Describe("RefreshTokenRepository", func() {
	var (
		ctx   context.Context
		path  string
		now   time.Time
		store *filestore.Store
		repo  *filestore.RefreshTokenRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "db.json")
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		var err error
		store, err = filestore.Open(path, filestore.WithClock(func() time.Time { return now }))
		Expect(err).NotTo(HaveOccurred())
		repo = filestore.NewRefreshTokenRepository(store)
	})

	It("stores only the digest", func() {
		raw, token := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, token)).To(Succeed())

		got, err := repo.GetByHash(ctx, token.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SubjectID).To(Equal("acct-1"))
		Expect(got.Role).To(Equal(auth.RoleStudent))
		Expect(got.Active).To(BeTrue())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).NotTo(ContainSubstring(raw))
	})

	It("rotates a usable token exactly once", func() {
		_, old := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, old)).To(Succeed())
		_, next := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		_, again := newToken("acct-1", auth.RoleStudent, now, time.Hour)

		ok, err := repo.Rotate(ctx, old.TokenHash, now, next)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = repo.Rotate(ctx, old.TokenHash, now, again)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		oldRec, err := repo.GetByHash(ctx, old.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(oldRec.Active).To(BeFalse())
		_, err = repo.GetByHash(ctx, again.TokenHash)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("refuses to rotate an expired token", func() {
		_, old := newToken("acct-1", auth.RoleStudent, now.Add(-2*time.Hour), time.Hour)
		Expect(repo.Create(ctx, old)).To(Succeed())
		_, next := newToken("acct-1", auth.RoleStudent, now, time.Hour)

		ok, err := repo.Rotate(ctx, old.TokenHash, now, next)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("serializes concurrent rotations of one token", func() {
		_, old := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, old)).To(Succeed())

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, next := newToken("acct-1", auth.RoleStudent, now, time.Hour)
				ok, err := repo.Rotate(ctx, old.TokenHash, now, next)
				Expect(err).NotTo(HaveOccurred())
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})

	It("deactivates idempotently", func() {
		_, token := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, token)).To(Succeed())

		Expect(repo.Deactivate(ctx, token.TokenHash)).To(Succeed())
		Expect(repo.Deactivate(ctx, token.TokenHash)).To(Succeed())
		Expect(repo.Deactivate(ctx, "unknown")).To(Succeed())

		got, err := repo.GetByHash(ctx, token.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Active).To(BeFalse())
	})

	It("deactivates all tokens of one subject only", func() {
		_, a := newToken("acct-a", auth.RoleStudent, now, time.Hour)
		_, b := newToken("acct-b", auth.RoleStudent, now, time.Hour)
		_, c := newToken("acct-a", auth.RoleCompany, now, time.Hour)
		for _, t := range []*auth.RefreshToken{a, b, c} {
			Expect(repo.Create(ctx, t)).To(Succeed())
		}

		Expect(repo.DeactivateAll(ctx, "acct-a", auth.RoleStudent)).To(Succeed())

		for hash, active := range map[string]bool{a.TokenHash: false, b.TokenHash: true, c.TokenHash: true} {
			got, err := repo.GetByHash(ctx, hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Active).To(Equal(active))
		}
	})

	It("prunes the subject's dead records on create", func() {
		_, dead := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		_, other := newToken("acct-2", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, dead)).To(Succeed())
		Expect(repo.Create(ctx, other)).To(Succeed())
		Expect(repo.Deactivate(ctx, dead.TokenHash)).To(Succeed())
		Expect(repo.Deactivate(ctx, other.TokenHash)).To(Succeed())

		_, fresh := newToken("acct-1", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, fresh)).To(Succeed())

		_, err := repo.GetByHash(ctx, dead.TokenHash)
		Expect(err).To(MatchError(auth.ErrNotFound))
		_, err = repo.GetByHash(ctx, other.TokenHash)
		Expect(err).NotTo(HaveOccurred())
	})

	It("deletes expired records", func() {
		_, expired := newToken("acct-1", auth.RoleStudent, now.Add(-2*time.Hour), time.Hour)
		_, live := newToken("acct-2", auth.RoleStudent, now, time.Hour)
		Expect(repo.Create(ctx, expired)).To(Succeed())
		Expect(repo.Create(ctx, live)).To(Succeed())

		n, err := repo.DeleteExpired(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
		_, err = repo.GetByHash(ctx, live.TokenHash)
		Expect(err).NotTo(HaveOccurred())
	})

	It("matches legacy role tags and numeric subject ids", func() {
		legacy := `{"refreshTokens":[{"tokenHash":"abc","userId":42,"role":"estudiante","createdAt":"2026-03-01T11:00:00.000Z","expiresAt":"2026-03-08T11:00:00.000Z","isActive":true}]}`
		Expect(os.WriteFile(path, []byte(legacy), 0o600)).To(Succeed())

		got, err := repo.GetByHash(ctx, "abc")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SubjectID).To(Equal("42"))
		Expect(got.Role).To(Equal(auth.RoleStudent))

		Expect(repo.DeactivateAll(ctx, "42", auth.RoleStudent)).To(Succeed())
		got, err = repo.GetByHash(ctx, "abc")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Active).To(BeFalse())
	})
})

var _ = Describe("Service over the file store", func() {
	It("runs the login, refresh, and logout flow", func() {
		ctx := context.Background()
		store, err := filestore.Open(filepath.Join(GinkgoT().TempDir(), "db.json"))
		Expect(err).NotTo(HaveOccurred())

		tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "q7#Nw2!Lp9@Zx4$Rt6^Vb1&Hm8*Kd3%J"}, filestore.NewRefreshTokenRepository(store))
		Expect(err).NotTo(HaveOccurred())
		svc, err := auth.NewService(filestore.NewAccountRepository(store), tokens, auth.NewBcryptHasher(bcrypt.MinCost))
		Expect(err).NotTo(HaveOccurred())

		account, err := svc.Register(ctx, auth.RoleStudent, "4521", "Tr0ub4dor&3")
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.ApproveAccount(ctx, auth.RoleStudent, account.ID)
		Expect(err).NotTo(HaveOccurred())

		login, err := svc.Login(ctx, auth.RoleStudent, "4521", "Tr0ub4dor&3")
		Expect(err).NotTo(HaveOccurred())
		pair, err := svc.Refresh(ctx, login.RefreshToken)
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Logout(ctx, pair.AccessToken, pair.RefreshToken)).To(Succeed())
		_, err = svc.Refresh(ctx, pair.RefreshToken)
		Expect(auth.Code(err)).To(Equal(auth.CodeInvalidCredentials))
	})
})

var _ = Describe("Store shared by two handles", func() {
	var (
		ctx  context.Context
		path string
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "db.json")
	})

	It("keeps every write when both handles mutate the file at once", func() {
		server, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		admin, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())

		account, err := auth.NewAccount(auth.RoleStudent, "4521", "h")
		Expect(err).NotTo(HaveOccurred())
		Expect(filestore.NewAccountRepository(admin).Create(ctx, account)).To(Succeed())

		tokens := filestore.NewRefreshTokenRepository(server)
		accounts := filestore.NewAccountRepository(admin)

		const n = 150
		hashes := make([]string, n)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := range n {
				_, tok := newToken(account.ID, auth.RoleStudent, time.Now(), time.Hour)
				Expect(tokens.Create(ctx, tok)).To(Succeed())
				hashes[i] = tok.TokenHash
			}
		}()
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := range n {
				Expect(accounts.SetApproved(ctx, auth.RoleStudent, account.ID, i%2 == 0)).To(Succeed())
			}
		}()
		wg.Wait()

		reader, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		readTokens := filestore.NewRefreshTokenRepository(reader)
		for _, hash := range hashes {
			got, err := readTokens.GetByHash(ctx, hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Active).To(BeTrue())
		}

		got, err := filestore.NewAccountRepository(reader).GetByID(ctx, auth.RoleStudent, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Approved).To(BeFalse(), "the last SetApproved call revoked approval")
	})

	It("waits for the file lock and gives up when the context ends", func() {
		store, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		before, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		other := flock.New(path + ".lock")
		Expect(other.Lock()).To(Succeed())
		DeferCleanup(other.Unlock)

		account, err := auth.NewAccount(auth.RoleCompany, "hr@acme.example", "h")
		Expect(err).NotTo(HaveOccurred())
		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		err = filestore.NewAccountRepository(store).Create(short, account)
		Expect(err).To(MatchError(context.DeadlineExceeded))

		after, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
	})

	It("lets a writer proceed once the other holder releases the lock", func() {
		store, err := filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())

		other := flock.New(path + ".lock")
		Expect(other.Lock()).To(Succeed())

		done := make(chan error, 1)
		go func() {
			account, err := auth.NewAccount(auth.RoleCompany, "hr@acme.example", "h")
			if err != nil {
				done <- err
				return
			}
			done <- filestore.NewAccountRepository(store).Create(ctx, account)
		}()

		Consistently(done, 100*time.Millisecond).ShouldNot(Receive())
		Expect(other.Unlock()).To(Succeed())
		Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})
})
