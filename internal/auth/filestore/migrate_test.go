// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package filestore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/internal/auth/filestore"
)

var _ = Describe("MigratePlaintextCredentials", func() {
	const legacy = `{
	  "estudiantes": [
	    {"id": 1, "legajo": "100", "password": "Tr0ub4dor&3", "estadoValidacion": true},
	    {"id": 2, "legajo": "200", "password": "password"},
	    {"id": 3, "legajo": "300"}
	  ],
	  "empresas": [
	    {"id": 4, "correo": "hr@acme.example", "contraseña": "$2a$04$abcdefghijklmnopqrstuu5Yk0v8lXxkz9rF0Vn0l3R5m6H3aVb9C"}
	  ],
	  "postulaciones": [{"id": 9}]
	}`

	var (
		ctx    context.Context
		dir    string
		path   string
		store  *filestore.Store
		hasher *auth.BcryptHasher
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "db.json")
		Expect(os.WriteFile(path, []byte(legacy), 0o600)).To(Succeed())
		var err error
		store, err = filestore.Open(path)
		Expect(err).NotTo(HaveOccurred())
		hasher = auth.NewBcryptHasher(bcrypt.MinCost)
	})

	It("hashes plaintext passwords and backs up the document", func() {
		report, err := store.MigratePlaintextCredentials(ctx, hasher, filestore.MigrateOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Migrated).To(Equal(2))
		Expect(report.AlreadyHashed).To(Equal(1))
		Expect(report.Missing).To(Equal(1))
		Expect(report.Weak).To(ConsistOf("2"))
		Expect(report.Backups).To(HaveLen(2))

		backup, err := os.ReadFile(filepath.Join(dir, "db.backup.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(backup).To(MatchJSON(legacy))

		accounts := filestore.NewAccountRepository(store)
		student, err := accounts.GetByIdentifier(ctx, auth.RoleStudent, "100")
		Expect(err).NotTo(HaveOccurred())
		Expect(auth.IsBcryptHash(student.CredentialHash)).To(BeTrue())
		Expect(hasher.Verify("Tr0ub4dor&3", student.CredentialHash)).To(BeTrue())

		var top map[string]json.RawMessage
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, &top)).To(Succeed())
		Expect(top["postulaciones"]).To(MatchJSON(`[{"id":9}]`))
	})

	It("is idempotent", func() {
		_, err := store.MigratePlaintextCredentials(ctx, hasher, filestore.MigrateOptions{})
		Expect(err).NotTo(HaveOccurred())
		after, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		report, err := store.MigratePlaintextCredentials(ctx, hasher, filestore.MigrateOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Migrated).To(Equal(0))
		Expect(report.AlreadyHashed).To(Equal(3))
		Expect(report.Backups).To(BeEmpty())

		again, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(after))
	})

	It("changes nothing on a dry run", func() {
		report, err := store.MigratePlaintextCredentials(ctx, hasher, filestore.MigrateOptions{DryRun: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Migrated).To(Equal(2))

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(MatchJSON(legacy))
		_, err = os.Stat(filepath.Join(dir, "db.backup.json"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
