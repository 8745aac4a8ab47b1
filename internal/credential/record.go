// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Status is the lifecycle state of an identity. Verification fails closed
// for any status other than StatusActive.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// CredentialRecord holds the stored credential state for one identity.
// PasswordHash is nil only transiently; Provision always writes one, using
// an auto-generated hidden password when the caller supplied none so that
// verification code paths stay uniform.
type CredentialRecord struct {
	IdentityID   ulid.ULID
	Status       Status
	PasswordHash *string
	PasscodeHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCredentialRecord creates a validated CredentialRecord.
func NewCredentialRecord(identityID ulid.ULID, passwordHash *string, passcodeHash string) (*CredentialRecord, error) {
	if identityID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("CRED_INVALID_IDENTITY").Errorf("identity ID cannot be zero")
	}
	if passwordHash != nil && *passwordHash == "" {
		return nil, oops.Code("CRED_INVALID_HASH").Errorf("password hash cannot be empty when provided")
	}
	if passcodeHash == "" {
		return nil, oops.Code("CRED_INVALID_HASH").Errorf("passcode hash cannot be empty")
	}

	now := time.Now()
	return &CredentialRecord{
		IdentityID:   identityID,
		Status:       StatusActive,
		PasswordHash: passwordHash,
		PasscodeHash: passcodeHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CredentialChanges carries the field-group updates for a conditional write.
// Nil fields are left untouched; the write as a whole is conditioned on the
// record still existing.
type CredentialChanges struct {
	PasswordHash *string
	PasscodeHash *string
}

// Empty reports whether the change set would write nothing.
func (c CredentialChanges) Empty() bool {
	return c.PasswordHash == nil && c.PasscodeHash == nil
}

// CredentialStore persists per-identity credential records. The backing
// store is external; implementations must treat Update as a per-record
// conditional write and surface a vanished record as ErrNotFound rather
// than silently succeeding.
type CredentialStore interface {
	// Get retrieves the credential record for an identity, including its
	// current status. Returns ErrNotFound if no record exists.
	Get(ctx context.Context, identityID ulid.ULID) (*CredentialRecord, error)

	// Create stores a new credential record.
	Create(ctx context.Context, record *CredentialRecord) error

	// Update applies changes to an existing record, conditioned on the
	// record existing at write time. Returns ErrNotFound when the record
	// vanished between read and write.
	Update(ctx context.Context, identityID ulid.ULID, changes CredentialChanges) error
}
