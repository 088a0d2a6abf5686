// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/internal/auth/filestore"
	"github.com/internhub/internhub/internal/config"
)

// NewMigratePasswordsCmd creates the migrate-passwords subcommand.
func NewMigratePasswordsCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate-passwords",
		Short: "Hash plaintext passwords left in a file store",
		Long: `Replace plaintext passwords in the JSON file store with bcrypt hashes.
Passwords that are already hashed are left alone, so the command can be run
repeatedly. The store file is backed up before it is rewritten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.DriverFile {
				return oops.Code("CONFIG_INVALID").
					With("driver", cfg.Store.Driver).
					Errorf("migrate-passwords only applies to the file store")
			}
			logger := setupLogging(cfg)

			st, err := filestore.Open(cfg.Store.Path, filestore.WithLogger(logger))
			if err != nil {
				return err
			}
			report, err := st.MigratePlaintextCredentials(cmd.Context(), auth.NewBcryptHasher(cfg.Auth.BcryptCost),
				filestore.MigrateOptions{DryRun: dryRun})
			if err != nil {
				return err
			}

			verb := "Hashed"
			if dryRun {
				verb = "Would hash"
			}
			cmd.Printf("%s %d password(s); %d already hashed; %d missing\n",
				verb, report.Migrated, report.AlreadyHashed, report.Missing)
			if len(report.Weak) > 0 {
				cmd.Printf("%d account(s) use passwords that fail the policy: %s\n",
					len(report.Weak), strings.Join(report.Weak, ", "))
			}
			for _, b := range report.Backups {
				cmd.Printf("Backup written to %s\n", b)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}
