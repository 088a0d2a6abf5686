// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

// MigrationReport summarizes a credential migration.
type MigrationReport struct {
	Migrated      int
	AlreadyHashed int
	Missing       int
	// Weak lists account ids whose plaintext password fails the password policy.
	Weak []string
	// Backups are the files written before the document was changed.
	Backups []string
}

// MigrateOptions controls MigratePlaintextCredentials.
type MigrateOptions struct {
	// DryRun reports what would change without writing anything.
	DryRun bool
}

// MigratePlaintextCredentials replaces plaintext passwords with hashes. It
// is idempotent: values that are already bcrypt hashes are left alone. The
// document is backed up before it is rewritten and restored from the backup
// if the rewrite fails.
func (s *Store) MigratePlaintextCredentials(ctx context.Context, hasher auth.PasswordHasher, opts MigrateOptions) (*MigrationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockFile(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	original, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Code("FILESTORE_READ_FAILED").With("path", s.path).Wrap(err)
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	report := &MigrationReport{}
	for _, role := range auth.Roles() {
		l := layouts[role]
		for _, rec := range doc.accounts[role] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id := rec.str(fieldID)
			secret := rec.str(l.secret)
			switch {
			case secret == "":
				report.Missing++
				s.logger.Warn("account has no password", "role", role, "account_id", id)
				continue
			case auth.IsBcryptHash(secret):
				report.AlreadyHashed++
				continue
			}

			if res := auth.ValidateStrength(secret); !res.Valid {
				report.Weak = append(report.Weak, id)
				s.logger.Warn("migrating weak password, user should change it", "role", role, "account_id", id)
			}
			report.Migrated++
			if opts.DryRun {
				continue
			}

			hash, err := hasher.Hash(secret)
			if err != nil {
				return nil, oops.Code("FILESTORE_MIGRATION_FAILED").
					With("account_id", id).
					With("role", role).
					Wrap(err)
			}
			if err := rec.set(l.secret, hash); err != nil {
				return nil, err
			}
		}
	}

	if opts.DryRun || report.Migrated == 0 {
		return report, nil
	}

	backups, err := s.writeBackups(original)
	if err != nil {
		return nil, err
	}
	report.Backups = backups

	if err := s.save(doc); err != nil {
		if restoreErr := writeFileAtomic(s.path, original); restoreErr != nil {
			return nil, oops.Code("FILESTORE_RESTORE_FAILED").
				With("backup", backups[0]).
				Wrap(errors.Join(err, restoreErr))
		}
		return nil, oops.Code("FILESTORE_MIGRATION_FAILED").With("restored_from", backups[0]).Wrap(err)
	}

	s.logger.Info("password migration complete",
		"migrated", report.Migrated,
		"already_hashed", report.AlreadyHashed,
		"missing", report.Missing,
		"weak", len(report.Weak),
	)
	return report, nil
}

// writeBackups writes the latest backup and a timestamped copy next to the document.
func (s *Store) writeBackups(data []byte) ([]string, error) {
	base := strings.TrimSuffix(s.path, ".json")
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	paths := []string{
		base + ".backup.json",
		base + ".backup." + stamp + ".json",
	}
	for _, p := range paths {
		if err := writeFileAtomic(p, data); err != nil {
			return nil, oops.Code("FILESTORE_BACKUP_FAILED").With("backup", p).Wrap(err)
		}
	}
	return paths, nil
}
