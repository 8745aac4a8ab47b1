// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Identity is the directory view of an account as the credential core needs
// it: a stable id, a human-facing slug and label, an optional contact point,
// and a lifecycle status. The identity store itself is an external
// collaborator; this package only reads it, except for the contact-verified
// flag flipped by VerifyEmailWithPasscode.
type Identity struct {
	ID            ulid.ULID
	Slug          string
	Label         string
	Email         *string
	EmailVerified bool
	Status        Status
}

// ContactPoint returns the identity's contact point, or "" if none is set.
func (i *Identity) ContactPoint() string {
	if i.Email == nil {
		return ""
	}
	return *i.Email
}

// Candidate is a transient resolution result; it is never persisted.
type Candidate struct {
	ID    ulid.ULID
	Label string
}

// IdentityDirectory looks up identities for resolution and dispatch.
type IdentityDirectory interface {
	// Get retrieves an identity by id. Returns ErrNotFound if missing.
	Get(ctx context.Context, id ulid.ULID) (*Identity, error)

	// LookupByIDOrSlug performs an exact lookup by id or slug, regardless
	// of status. Returns ErrNotFound if neither matches.
	LookupByIDOrSlug(ctx context.Context, identifier string) (*Identity, error)

	// LookupByEmail returns all active identities sharing the given
	// contact point. Distinct identities can share an email in this
	// domain, so more than one result is normal.
	LookupByEmail(ctx context.Context, email string) ([]Identity, error)

	// MarkContactVerified flips the contact-verified flag for an identity.
	// Returns ErrNotFound if the identity is missing.
	MarkContactVerified(ctx context.Context, id ulid.ULID) error
}
