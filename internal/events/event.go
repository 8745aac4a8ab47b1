// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package events provides the in-process event channel between the
// credential core and external delivery collaborators. Emission is
// fire-and-forget: the core never observes delivery failures.
package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the kind of event.
type Type string

// TypePasscodeSent is emitted after a passcode dispatch batch commits.
const TypePasscodeSent Type = "credential.passcode_sent"

// Event is a notification for an external collaborator to consume
// asynchronously.
type Event struct {
	ID        ulid.ULID
	Type      Type
	Timestamp time.Time
	Payload   []byte // JSON
}

// New creates an event with a fresh id and timestamp.
func New(eventType Type, payload []byte) Event {
	return Event{
		ID:        ulid.Make(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
