// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/internhub/internhub/internal/config"
	"github.com/internhub/internhub/internal/store"
)

// Migrator is the subset of store.Migrator the migrate commands drive.
type Migrator interface {
	Up() error
	Down() error
	Status() (store.Status, error)
	Force(version int) error
	Close() error
}

// migratorFactory opens a Migrator. Tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply, roll back or inspect the account and refresh-token schema of the
PostgreSQL store. Without a subcommand all pending migrations are applied.`,
		RunE: runMigrateUp,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all auth tables",
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			cmd.Println("Rolling back migrations...")
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Rollback completed successfully")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied and pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			st, err := m.Status()
			if err != nil {
				return err
			}
			printStatus(cmd, st)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it, clearing a dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced schema version to %d\n", version)
			return nil
		}),
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	return withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})(cmd, args)
}

// withMigrator opens a Migrator for the configured database around fn.
func withMigrator(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, false)
		if err != nil {
			return err
		}
		databaseURL, err := getDatabaseURL(cfg)
		if err != nil {
			return err
		}

		m, err := migratorFactory(databaseURL)
		if err != nil {
			return oops.With("operation", "open migrator").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
			}
		}()
		return fn(cmd, m, args)
	}
}

// getDatabaseURL returns the configured PostgreSQL URL.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.Store.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("a database URL is required (--database-url, DATABASE_URL or store.database_url)")
	}
	return cfg.Store.DatabaseURL, nil
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q", s)
	}
	return version, nil
}

func printStatus(cmd *cobra.Command, st store.Status) {
	if st.Version == 0 {
		cmd.Println("Schema version: none")
	} else {
		cmd.Printf("Schema version: %d (%s)\n", st.Version, st.Name)
	}
	if st.Dirty {
		cmd.Println("Schema is DIRTY: repair the failed migration, then run 'migrate force'")
	}
	if len(st.Pending) == 0 {
		cmd.Println("No pending migrations")
		return
	}
	pending := make([]string, len(st.Pending))
	for i, v := range st.Pending {
		pending[i] = fmt.Sprint(v)
	}
	cmd.Printf("Pending migrations: %s\n", strings.Join(pending, ", "))
}
