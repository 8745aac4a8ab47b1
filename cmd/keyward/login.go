// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/credential"
)

// NewLoginCmd creates the login subcommand.
func NewLoginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Attempt a password login",
		Long: `Attempt to authenticate an identifier (id, slug, or email) with a
password. When several identities share an email and match, the attempt
is ambiguous and the candidates are listed instead of logging in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.manager.Login(ctx, args[0], password)
			if err != nil {
				return err
			}

			switch outcome.Kind {
			case credential.LoginAuthenticated:
				cmd.Printf("Authenticated as %s\n", outcome.IdentityID.String())
			case credential.LoginAmbiguous:
				cmd.Printf("Ambiguous: %d identities share %s; retry with an explicit id:\n",
					len(outcome.Candidates), outcome.ContactPoint)
				for id, label := range outcome.Candidates {
					cmd.Printf("  %s  %s\n", id.String(), label)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password to verify")
	_ = cmd.MarkFlagRequired("password") //nolint:errcheck // flag is defined above

	return cmd
}
