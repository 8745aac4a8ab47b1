// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/credential"
)

// CredentialRepository implements credential.CredentialStore using
// PostgreSQL.
type CredentialRepository struct {
	db db
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db db) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get retrieves the credential record for an identity, joined with the
// identity's current status.
func (r *CredentialRepository) Get(ctx context.Context, identityID ulid.ULID) (*credential.CredentialRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT c.identity_id, i.status, c.password_hash, c.passcode_hash,
		       c.created_at, c.updated_at
		FROM credentials c
		JOIN identities i ON i.id = c.identity_id
		WHERE c.identity_id = $1
	`, identityID.String())

	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CRED_RECORD_NOT_FOUND").
			With("identity_id", identityID.String()).
			Wrap(credential.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CRED_RECORD_GET_FAILED").
			With("operation", "get credential record").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	return record, nil
}

// Create stores a new credential record.
func (r *CredentialRepository) Create(ctx context.Context, record *credential.CredentialRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO credentials (identity_id, password_hash, passcode_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		record.IdentityID.String(),
		record.PasswordHash,
		record.PasscodeHash,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return oops.Code("CRED_RECORD_CREATE_FAILED").
			With("operation", "insert credential record").
			With("identity_id", record.IdentityID.String()).
			Wrap(err)
	}
	return nil
}

// Update applies changes conditioned on the record existing at write time.
// Nil change fields leave the stored value untouched. A vanished record
// surfaces as ErrNotFound rather than silently succeeding.
func (r *CredentialRepository) Update(ctx context.Context, identityID ulid.ULID, changes credential.CredentialChanges) error {
	if changes.Empty() {
		return nil
	}

	return withRetry(ctx, func(ctx context.Context) error {
		result, err := r.db.Exec(ctx, `
			UPDATE credentials SET
				password_hash = COALESCE($2, password_hash),
				passcode_hash = COALESCE($3, passcode_hash),
				updated_at = $4
			WHERE identity_id = $1
		`,
			identityID.String(),
			changes.PasswordHash,
			changes.PasscodeHash,
			time.Now(),
		)
		if err != nil {
			return oops.Code("CRED_RECORD_UPDATE_FAILED").
				With("operation", "update credential record").
				With("identity_id", identityID.String()).
				Wrap(err)
		}
		if result.RowsAffected() == 0 {
			return oops.Code("CRED_RECORD_NOT_FOUND").
				With("identity_id", identityID.String()).
				Wrap(credential.ErrNotFound)
		}
		return nil
	})
}

// scanRecord scans a single row into a CredentialRecord.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRecord(row pgx.Row) (*credential.CredentialRecord, error) {
	var (
		idStr        string
		status       string
		passwordHash *string
		passcodeHash string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&idStr, &status, &passwordHash, &passcodeHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("CRED_RECORD_SCAN_FAILED").
			With("operation", "scan credential record").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CRED_RECORD_INVALID_ID").
			With("operation", "parse identity id").
			With("identity_id", idStr).
			Wrap(err)
	}

	return &credential.CredentialRecord{
		IdentityID:   id,
		Status:       credential.Status(status),
		PasswordHash: passwordHash,
		PasscodeHash: passcodeHash,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ credential.CredentialStore = (*CredentialRepository)(nil)
