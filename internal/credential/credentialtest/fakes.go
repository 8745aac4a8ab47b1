// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package credentialtest provides in-memory fakes for credential tests.
package credentialtest

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/keyward/keyward/internal/credential"
	"github.com/keyward/keyward/internal/events"
)

// Store is an in-memory CredentialStore.
type Store struct {
	mu      sync.Mutex
	records map[ulid.ULID]*credential.CredentialRecord

	// Updates counts calls to Update, including legacy-hash upgrades.
	Updates int

	// FailUpdate, when set, is returned from Update before any change.
	FailUpdate error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[ulid.ULID]*credential.CredentialRecord)}
}

// Get implements credential.CredentialStore.
func (s *Store) Get(_ context.Context, identityID ulid.ULID) (*credential.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identityID]
	if !ok {
		return nil, credential.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

// Create implements credential.CredentialStore.
func (s *Store) Create(_ context.Context, record *credential.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records[record.IdentityID] = &clone
	return nil
}

// Update implements credential.CredentialStore.
func (s *Store) Update(_ context.Context, identityID ulid.ULID, changes credential.CredentialChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpdate != nil {
		return s.FailUpdate
	}

	record, ok := s.records[identityID]
	if !ok {
		return credential.ErrNotFound
	}

	s.Updates++
	if changes.PasswordHash != nil {
		hash := *changes.PasswordHash
		record.PasswordHash = &hash
	}
	if changes.PasscodeHash != nil {
		record.PasscodeHash = *changes.PasscodeHash
	}
	return nil
}

// SetStatus overrides the stored status for an identity.
func (s *Store) SetStatus(identityID ulid.ULID, status credential.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[identityID]; ok {
		record.Status = status
	}
}

// Delete removes a record, simulating concurrent identity deletion.
func (s *Store) Delete(identityID ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identityID)
}

// Directory is an in-memory IdentityDirectory.
type Directory struct {
	mu         sync.Mutex
	identities map[ulid.ULID]*credential.Identity
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{identities: make(map[ulid.ULID]*credential.Identity)}
}

// Add registers an identity.
func (d *Directory) Add(identity credential.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[identity.ID] = &identity
}

// Get implements credential.IdentityDirectory.
func (d *Directory) Get(_ context.Context, id ulid.ULID) (*credential.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.identities[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

// LookupByIDOrSlug implements credential.IdentityDirectory.
func (d *Directory) LookupByIDOrSlug(_ context.Context, identifier string) (*credential.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, identity := range d.identities {
		if identity.ID.String() == identifier || identity.Slug == identifier {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, credential.ErrNotFound
}

// LookupByEmail implements credential.IdentityDirectory.
func (d *Directory) LookupByEmail(_ context.Context, email string) ([]credential.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matches []credential.Identity
	for _, identity := range d.identities {
		if identity.Status != credential.StatusActive {
			continue
		}
		if identity.Email != nil && strings.EqualFold(*identity.Email, email) {
			matches = append(matches, *identity)
		}
	}
	return matches, nil
}

// MarkContactVerified implements credential.IdentityDirectory.
func (d *Directory) MarkContactVerified(_ context.Context, id ulid.ULID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.identities[id]
	if !ok {
		return credential.ErrNotFound
	}
	identity.EmailVerified = true
	return nil
}

// Verified reports whether the identity's contact point has been verified.
func (d *Directory) Verified(id ulid.ULID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.identities[id]
	return ok && identity.EmailVerified
}

// Sink records broadcast events.
type Sink struct {
	mu     sync.Mutex
	events []events.Event
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Broadcast implements credential.EventSink.
func (s *Sink) Broadcast(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events.
func (s *Sink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// AllowAll is an AccessChecker that permits everything.
type AllowAll struct{}

// Check implements credential.AccessChecker.
func (AllowAll) Check(context.Context, string, string, string) bool { return true }

// DenyAll is an AccessChecker that permits nothing.
type DenyAll struct{}

// Check implements credential.AccessChecker.
func (DenyAll) Check(context.Context, string, string, string) bool { return false }
