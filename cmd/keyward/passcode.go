// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/credential"
	"github.com/keyward/keyward/internal/events"
)

// NewSendPasscodeCmd creates the send-passcode subcommand.
func NewSendPasscodeCmd() *cobra.Command {
	var usage string

	cmd := &cobra.Command{
		Use:   "send-passcode <identifier>",
		Short: "Rotate and dispatch passcodes for an identifier",
		Long: `Resolve an identifier (id, slug, or email), rotate the passcode of
every matching identity, and print the dispatched batch. All matches
must share the same contact point.`,
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

			candidates, err := a.manager.ResolveIdentifier(ctx, args[0], credential.ErrorIfMissing())
			if err != nil {
				return err
			}

			ids := make([]ulid.ULID, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}

			// Capture the dispatch event so the operator sees the batch the
			// delivery collaborator would receive.
			ch := a.broadcaster.Subscribe(events.TypePasscodeSent)
			defer a.broadcaster.Unsubscribe(events.TypePasscodeSent, ch)

			if err := a.dispatcher.SendPasscodes(ctx, ids, credential.Usage(usage)); err != nil {
				return err
			}

			select {
			case event := <-ch:
				var payload credential.PasscodeSent
				if err := json.Unmarshal(event.Payload, &payload); err != nil {
					return oops.Code("DISPATCH_FAILED").
						With("operation", "decode event payload").
						Wrap(err)
				}
				cmd.Printf("Dispatched %d passcode(s) to %s (usage: %s)\n",
					len(payload.Issued), payload.ContactPoint, payload.Usage)
			default:
				// Broadcast is synchronous; reaching here means no event was
				// emitted despite a successful dispatch.
				return oops.Code("DISPATCH_FAILED").Errorf("dispatch event was not emitted")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&usage, "usage", string(credential.UsageReset), "passcode usage (reset or verify)")

	return cmd
}
