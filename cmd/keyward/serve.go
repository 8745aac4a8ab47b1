// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/credential"
	"github.com/keyward/keyward/internal/events"
	"github.com/keyward/keyward/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the credential service",
		Long: `Run the credential service: serves metrics and health probes and
consumes passcode dispatch events for delivery.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var obsErrCh <-chan error
	var obs *observability.Server
	if cfg.Observability.Enabled {
		obs = observability.NewServer(cfg.Observability.Addr, func(ctx context.Context) bool {
			return a.pool.Ping(ctx) == nil
		})
		obsErrCh, err = obs.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").
				With("operation", "start observability server").
				Wrap(err)
		}
	}

	// Consume dispatch events. A real deployment attaches a mail or SMS
	// delivery collaborator here; the built-in consumer only records that
	// the batch went out.
	eventCh := a.broadcaster.Subscribe(events.TypePasscodeSent)
	go consumePasscodeEvents(eventCh)

	slog.Info("keyward serving", "version", version)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr, ok := <-obsErrCh:
		if ok && serveErr != nil {
			return oops.Code("SERVE_FAILED").Wrap(serveErr)
		}
	}

	a.broadcaster.Unsubscribe(events.TypePasscodeSent, eventCh)

	if obs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := obs.Stop(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// consumePasscodeEvents drains dispatch events until the channel closes.
// Passcodes themselves are never logged.
func consumePasscodeEvents(ch chan events.Event) {
	for event := range ch {
		var payload credential.PasscodeSent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			slog.Error("malformed passcode event payload",
				"event_id", event.ID.String(),
				"error", err,
			)
			continue
		}
		slog.Info("passcode batch dispatched",
			"event_id", event.ID.String(),
			"usage", string(payload.Usage),
			"contact_point", payload.ContactPoint,
			"identities", len(payload.Issued),
		)
	}
}
