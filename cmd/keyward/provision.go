// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/credential"
)

// NewProvisionCmd creates the provision subcommand.
func NewProvisionCmd() *cobra.Command {
	var (
		slug     string
		label    string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create an identity with credentials",
		Long: `Create an identity and its credential record. Without --password a
hidden random password is generated so the account can only be entered
via a passcode reset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			identity := &credential.Identity{
				ID:     ulid.Make(),
				Slug:   slug,
				Label:  label,
				Status: credential.StatusActive,
			}
			if email != "" {
				identity.Email = &email
			}
			if identity.Label == "" {
				identity.Label = slug
			}

			if err := a.identities.Create(ctx, identity); err != nil {
				return err
			}
			if _, err := a.manager.Provision(ctx, identity.ID, credential.ProvisionRequest{
				Password: password,
			}); err != nil {
				return err
			}

			cmd.Printf("Provisioned identity %s (%s)\n", identity.ID.String(), identity.Slug)
			return nil
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "unique identity slug")
	cmd.Flags().StringVar(&label, "label", "", "display label (defaults to slug)")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&password, "password", "", "initial password (omit for a hidden random one)")
	_ = cmd.MarkFlagRequired("slug") //nolint:errcheck // flag is defined above

	return cmd
}
