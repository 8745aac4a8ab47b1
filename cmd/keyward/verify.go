// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/credential"
)

// NewVerifyEmailCmd creates the verify-email subcommand.
func NewVerifyEmailCmd() *cobra.Command {
	var passcode string

	cmd := &cobra.Command{
		Use:   "verify-email <identity-id>",
		Short: "Verify an identity's contact point with a passcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ulid.Parse(args[0])
			if err != nil {
				return oops.Code("INVALID_IDENTITY_ID").
					With("identity_id", args[0]).
					Wrap(err)
			}

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

			ok, err := a.manager.VerifyEmailWithPasscode(ctx, credential.SubjectSystem, id, passcode)
			if err != nil {
				return err
			}
			if !ok {
				return oops.Code("CRED_INVALID_PASSCODE").Errorf("passcode does not match")
			}

			cmd.Printf("Contact point verified for %s\n", id.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&passcode, "passcode", "", "passcode to verify")
	_ = cmd.MarkFlagRequired("passcode") //nolint:errcheck // flag is defined above

	return cmd
}
