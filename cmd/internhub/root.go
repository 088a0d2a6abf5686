// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/internhub/internhub/internal/config"
	"github.com/internhub/internhub/internal/logging"
)

const serviceName = "internhub"

// NewRootCmd creates the root command for the InternHub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "internhub",
		Short: "InternHub - authentication core of the internship platform",
		Long: `InternHub authenticates students and companies, issues and rotates
their tokens, and gates every account behind administrative approval.`,
		SilenceUsage: true,
	}

	addConfigFlags(cmd)

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewMigratePasswordsCmd())
	cmd.AddCommand(NewApproveCmd())
	cmd.AddCommand(NewApprovalTokenCmd())

	return cmd
}

// addConfigFlags registers the global --config flag and the configuration
// override flags on cmd.
func addConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "config file path (default: XDG_CONFIG_HOME/internhub/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())
}

// loadConfig merges the configuration sources for cmd. Inherited persistent
// flags are visible through cmd.Flags() once cobra has parsed them.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config") //nolint:errcheck // registered on the root command
	return config.Load(config.LoadOptions{
		File:           path,
		Flags:          cmd.Flags(),
		SkipValidation: !validate,
	})
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  os.Stderr,
	})
}
