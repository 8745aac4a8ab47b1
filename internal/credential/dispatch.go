// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"github.com/keyward/keyward/internal/events"
)

// Usage distinguishes what a dispatched passcode is for.
type Usage string

const (
	// UsageReset marks a passcode sent for resetting a password.
	UsageReset Usage = "reset"
	// UsageVerify marks a passcode sent for verifying a contact point.
	UsageVerify Usage = "verify"
)

// Valid reports whether u is a known usage.
func (u Usage) Valid() bool {
	return u == UsageReset || u == UsageVerify
}

// PasscodeIssue pairs an identity with the plaintext passcode generated for
// it during a dispatch batch.
type PasscodeIssue struct {
	IdentityID ulid.ULID `json:"identity_id"`
	Passcode   string    `json:"passcode"`
}

// PasscodeSent is the payload of a TypePasscodeSent event. The external
// delivery collaborator sends one message to ContactPoint covering every
// issued passcode.
type PasscodeSent struct {
	Usage        Usage           `json:"usage"`
	ContactPoint string          `json:"contact_point"`
	Issued       []PasscodeIssue `json:"issued"`
}

// EventSink receives dispatch events; satisfied by *events.Broadcaster.
type EventSink interface {
	Broadcast(event events.Event)
}

// Dispatcher batches passcode generation across identities sharing a
// contact point and emits a single notification event for external
// delivery.
type Dispatcher struct {
	manager *Manager
	dir     IdentityDirectory
	sink    EventSink
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(manager *Manager, dir IdentityDirectory, sink EventSink) (*Dispatcher, error) {
	if manager == nil {
		return nil, oops.Code("DISPATCH_INVALID_DEPS").Errorf("credential manager is required")
	}
	if dir == nil {
		return nil, oops.Code("DISPATCH_INVALID_DEPS").Errorf("identity directory is required")
	}
	if sink == nil {
		return nil, oops.Code("DISPATCH_INVALID_DEPS").Errorf("event sink is required")
	}
	return &Dispatcher{manager: manager, dir: dir, sink: sink}, nil
}

// SendPasscodes rotates the passcode for every given identity and emits one
// TypePasscodeSent event carrying the plaintext codes for delivery.
//
// All identities must share the same contact point; this is checked before
// any write so a mismatched batch persists nothing. Partial notification
// would leak which identities exist, so the event is emitted only after
// every per-identity update has succeeded. Old-secret checks never apply on
// this path and no caller-chosen password can be smuggled through it.
func (d *Dispatcher) SendPasscodes(ctx context.Context, identityIDs []ulid.ULID, usage Usage) error {
	if !usage.Valid() {
		return oops.Code("DISPATCH_INVALID_USAGE").
			With("usage", string(usage)).
			Errorf("unknown passcode usage: %s", usage)
	}
	if len(identityIDs) == 0 {
		return oops.Code("DISPATCH_NO_IDENTITIES").Errorf("no identities to send passcodes to")
	}

	contactPoint, err := d.sharedContactPoint(ctx, identityIDs)
	if err != nil {
		return err
	}

	// Rotate passcodes concurrently; the event below is the barrier.
	issued := make([]PasscodeIssue, len(identityIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range identityIDs {
		g.Go(func() error {
			change, err := d.manager.SetCredentials(gctx, SubjectSystem, id, ChangeRequest{})
			if err != nil {
				return err
			}
			issued[i] = PasscodeIssue{IdentityID: id, Passcode: change.Passcode}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return oops.Code("DISPATCH_FAILED").
			With("usage", string(usage)).
			Wrap(err)
	}

	payload, err := json.Marshal(PasscodeSent{
		Usage:        usage,
		ContactPoint: contactPoint,
		Issued:       issued,
	})
	if err != nil {
		return oops.Code("DISPATCH_FAILED").
			With("operation", "marshal event payload").
			Wrap(err)
	}

	passcodesIssued.WithLabelValues(string(usage)).Add(float64(len(issued)))
	d.sink.Broadcast(events.New(events.TypePasscodeSent, payload))
	return nil
}

// sharedContactPoint loads every identity and requires a single common
// contact point across the batch.
func (d *Dispatcher) sharedContactPoint(ctx context.Context, identityIDs []ulid.ULID) (string, error) {
	contactPoint := ""
	for _, id := range identityIDs {
		identity, err := d.dir.Get(ctx, id)
		if err != nil {
			return "", oops.Code("DISPATCH_FAILED").
				With("operation", "get identity").
				With("identity_id", id.String()).
				Wrap(err)
		}
		cp := identity.ContactPoint()
		if cp == "" {
			return "", oops.Code("DISPATCH_NO_CONTACT_POINT").
				With("identity_id", id.String()).
				Errorf("identity has no contact point")
		}
		if contactPoint == "" {
			contactPoint = cp
			continue
		}
		if cp != contactPoint {
			return "", oops.Code("CONTACT_POINT_MISMATCH").
				Errorf("identities do not all share the same contact point")
		}
	}
	return contactPoint, nil
}
