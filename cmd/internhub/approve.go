// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/internhub/internhub/internal/auth"
)

type accountFlags struct {
	role string
	id   string
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.role, "role", "", "account role (student or company)")
	cmd.Flags().StringVar(&f.id, "id", "", "account id")
}

func (f *accountFlags) parse() (auth.Role, string, error) {
	if f.role == "" || f.id == "" {
		return "", "", oops.Code(auth.CodeInvalidInput).Errorf("--role and --id are required")
	}
	role, err := auth.ParseRole(f.role)
	if err != nil {
		return "", "", err
	}
	return role, f.id, nil
}

// NewApproveCmd creates the approve subcommand.
func NewApproveCmd() *cobra.Command {
	var (
		token   string
		revoke  bool
		account accountFlags
	)

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending account or revoke an approval",
		Long: `Approve the account named by an approval token (--token) or by
--role and --id. With --revoke the account is unapproved instead and all of
its refresh tokens are revoked; outstanding access tokens stop working on
their next use.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token != "" && (revoke || account.role != "" || account.id != "") {
				return oops.Code(auth.CodeInvalidInput).Errorf("--token cannot be combined with --revoke, --role or --id")
			}

			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)
			svc, closeStore, err := openService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			if token != "" {
				acct, err := svc.Approve(cmd.Context(), token)
				if err != nil {
					return err
				}
				cmd.Printf("Approved %s %s (%s)\n", acct.Role, acct.ID, acct.Identifier)
				return nil
			}

			role, id, err := account.parse()
			if err != nil {
				return err
			}
			if revoke {
				if err := svc.RevokeApproval(cmd.Context(), role, id); err != nil {
					return err
				}
				cmd.Printf("Revoked approval of %s %s\n", role, id)
				return nil
			}
			acct, err := svc.ApproveAccount(cmd.Context(), role, id)
			if err != nil {
				return err
			}
			cmd.Printf("Approved %s %s (%s)\n", acct.Role, acct.ID, acct.Identifier)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "approval token from the registration notice")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "unapprove the account and revoke its refresh tokens")
	account.register(cmd)
	return cmd
}

// NewApprovalTokenCmd creates the approval-token subcommand.
func NewApprovalTokenCmd() *cobra.Command {
	var account accountFlags

	cmd := &cobra.Command{
		Use:   "approval-token",
		Short: "Issue a new approval token and link for a pending account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, id, err := account.parse()
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)
			svc, closeStore, err := openService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			token, err := svc.ApprovalToken(cmd.Context(), role, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintln(cmd.OutOrStdout(), approvalLink(cfg.HTTP.PublicURL, token))
			return nil
		},
	}

	account.register(cmd)
	return cmd
}

// approvalLink builds the one-click approval URL served by the API.
func approvalLink(publicURL, token string) string {
	return strings.TrimRight(publicURL, "/") + "/auth/approve?token=" + url.QueryEscape(token)
}
