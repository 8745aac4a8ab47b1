// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the keyward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyward",
		Short: "Keyward - password and passcode credential service",
		Long: `Keyward manages password-based credentials for identities:
bcrypt-hashed passwords, single-use passcodes for resets and contact
verification, and ambiguity-aware login across shared contact points.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("log.format", "", "log format (json or text)")
	cmd.PersistentFlags().String("log.level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database.url", "", "PostgreSQL connection URL")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewProvisionCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewSendPasscodeCmd())
	cmd.AddCommand(NewVerifyEmailCmd())

	return cmd
}
