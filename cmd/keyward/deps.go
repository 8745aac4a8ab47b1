// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/access"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/credential"
	"github.com/keyward/keyward/internal/credential/postgres"
	"github.com/keyward/keyward/internal/events"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/store"
)

// app holds the wired service graph for a command invocation.
type app struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	broadcaster *events.Broadcaster
	manager     *credential.Manager
	dispatcher  *credential.Dispatcher
	identities  *postgres.IdentityRepository
}

// loadConfig loads configuration for a command, layering the command's
// flags over the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	return config.Load(path, explicit, cmd.Flags())
}

// buildApp connects to the database and wires the credential service graph.
// The caller must Close the returned app.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logging.SetDefault("keyward", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	credRepo := postgres.NewCredentialRepository(pool)
	identRepo := postgres.NewIdentityRepository(pool)

	hasher, err := credential.NewBcryptHasherWithCost(cfg.Credential.BcryptCost)
	if err != nil {
		pool.Close()
		return nil, err
	}

	generator, err := credential.NewGeneratorWithLength(cfg.Credential.PasscodeLength)
	if err != nil {
		pool.Close()
		return nil, err
	}

	checker := access.NewStaticChecker()

	manager, err := credential.NewManager(credRepo, identRepo, hasher, generator, checker)
	if err != nil {
		pool.Close()
		return nil, err
	}

	broadcaster := events.NewBroadcaster()

	dispatcher, err := credential.NewDispatcher(manager, identRepo, broadcaster)
	if err != nil {
		pool.Close()
		return nil, oops.Code("APP_WIRING_FAILED").Wrap(err)
	}

	return &app{
		cfg:         cfg,
		pool:        pool,
		broadcaster: broadcaster,
		manager:     manager,
		dispatcher:  dispatcher,
		identities:  identRepo,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.pool.Close()
}
