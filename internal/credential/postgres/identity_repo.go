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

// IdentityRepository implements credential.IdentityDirectory using
// PostgreSQL. The identity store is owned by an external workflow; this
// repository reads it and flips the contact-verified flag, plus a Create
// used by provisioning tooling and tests.
type IdentityRepository struct {
	db db
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db db) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `id, slug, label, email, email_verified, status`

// Get retrieves an identity by id.
func (r *IdentityRepository) Get(ctx context.Context, id ulid.ULID) (*credential.Identity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id.String())

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(credential.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity").
			With("id", id.String()).
			Wrap(err)
	}
	return identity, nil
}

// LookupByIDOrSlug performs an exact lookup by id or slug.
func (r *IdentityRepository) LookupByIDOrSlug(ctx context.Context, identifier string) (*credential.Identity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1 OR slug = $1
	`, identifier)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("identifier", identifier).
			Wrap(credential.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").
			With("operation", "lookup by id or slug").
			With("identifier", identifier).
			Wrap(err)
	}
	return identity, nil
}

// LookupByEmail returns all active identities with the given contact point
// (case-insensitive). Distinct identities can share an email.
func (r *IdentityRepository) LookupByEmail(ctx context.Context, email string) ([]credential.Identity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE LOWER(email) = LOWER($1) AND status = 'active'
	`, email)
	if err != nil {
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").
			With("operation", "lookup by email").
			Wrap(err)
	}
	defer rows.Close()

	var identities []credential.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, oops.Code("IDENTITY_LOOKUP_FAILED").
				With("operation", "scan identity row").
				Wrap(err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").
			With("operation", "iterate identities").
			Wrap(err)
	}
	return identities, nil
}

// MarkContactVerified flips the contact-verified flag for an identity.
func (r *IdentityRepository) MarkContactVerified(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE identities SET email_verified = TRUE, updated_at = $2
		WHERE id = $1
	`, id.String(), time.Now())
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", "mark contact verified").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(credential.ErrNotFound)
	}
	return nil
}

// Create stores a new identity row. Used by provisioning tooling; the
// production identity store is written by an external workflow.
func (r *IdentityRepository) Create(ctx context.Context, identity *credential.Identity) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO identities (id, slug, label, email, email_verified, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		identity.ID.String(),
		identity.Slug,
		identity.Label,
		identity.Email,
		identity.EmailVerified,
		string(identity.Status),
		now,
		now,
	)
	if err != nil {
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("slug", identity.Slug).
			Wrap(err)
	}
	return nil
}

// scanIdentity scans a single row into an Identity.
// Callers are responsible for handling pgx.ErrNoRows.
func scanIdentity(row pgx.Row) (*credential.Identity, error) {
	var (
		idStr         string
		slug          string
		label         string
		email         *string
		emailVerified bool
		status        string
	)

	err := row.Scan(&idStr, &slug, &label, &email, &emailVerified, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("IDENTITY_SCAN_FAILED").
			With("operation", "scan identity").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").
			With("operation", "parse identity id").
			With("id", idStr).
			Wrap(err)
	}

	return &credential.Identity{
		ID:            id,
		Slug:          slug,
		Label:         label,
		Email:         email,
		EmailVerified: emailVerified,
		Status:        credential.Status(status),
	}, nil
}

// Compile-time interface check.
var _ credential.IdentityDirectory = (*IdentityRepository)(nil)
