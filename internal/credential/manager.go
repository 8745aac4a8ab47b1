// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/keyward/keyward/pkg/errutil"
)

var tracer = otel.Tracer("keyward/credential")

// Access subjects and actions understood by the credential core. Subjects
// follow the prefixed string format of the access package.
const (
	SubjectSystem   = "system"
	ActionEdit      = "edit"
	subjectIdentity = "identity:"
	resourcePrefix  = "credential:"
)

// IdentitySubject returns the access subject string for an identity.
func IdentitySubject(id ulid.ULID) string {
	return subjectIdentity + id.String()
}

// CredentialResource returns the access resource string for an identity's
// credentials.
func CredentialResource(id ulid.ULID) string {
	return resourcePrefix + id.String()
}

// AccessChecker authorizes credential operations. Implemented by the access
// package; the credential core only consumes the boolean decision.
type AccessChecker interface {
	Check(ctx context.Context, subject, action, resource string) bool
}

// dummyBcryptHash is verified when an identifier resolves to nothing so that
// response time stays consistent with a real verification. It is not a
// credential; the comparison result is discarded.
//
//nolint:gosec // G101: intentionally fake hash for timing consistency.
const dummyBcryptHash = "bcrypt:$2a$12$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// secretField selects which stored hash a verification targets.
type secretField string

const (
	fieldPassword secretField = "password"
	fieldPasscode secretField = "passcode"
)

// LoginOutcomeKind tags the variant of a successful login attempt.
type LoginOutcomeKind uint8

const (
	// LoginAuthenticated means exactly one active identity matched.
	LoginAuthenticated LoginOutcomeKind = iota
	// LoginAmbiguous means several identities share the identifier and at
	// least one matched the password; the caller must re-prompt for an
	// explicit id. The login is not completed.
	LoginAmbiguous
)

// LoginOutcome is the tagged result of a login attempt that did not fail.
type LoginOutcome struct {
	Kind LoginOutcomeKind

	// IdentityID is set when Kind is LoginAuthenticated.
	IdentityID ulid.ULID

	// ContactPoint and Candidates are set when Kind is LoginAmbiguous.
	// Candidates maps each matching identity to its label.
	ContactPoint string
	Candidates   map[ulid.ULID]string
}

// ChangeRequest carries the optional inputs to SetCredentials. Nil fields
// are not supplied.
type ChangeRequest struct {
	OldPassword *string
	OldPasscode *string
	NewPassword *string
}

// CredentialChange reports which fields a SetCredentials call committed.
// Passcode is the plaintext of the freshly rotated passcode, returned for
// dispatch to hand to the delivery collaborator; it is never persisted in
// the clear.
type CredentialChange struct {
	PasswordChanged bool
	PasscodeRotated bool
	Passcode        string
}

// ProvisionRequest carries the optional inputs to Provision. Hashed flags
// mark inputs that are already tagged hashes and must not be re-hashed.
type ProvisionRequest struct {
	Password       string
	PasswordHashed bool
	Passcode       string
	PasscodeHashed bool
}

// Manager is the authentication and authorization core: it verifies old
// credentials, computes and commits new hashes as a unit, enforces
// permission checks, and handles ambiguous multi-match login.
type Manager struct {
	store     CredentialStore
	dir       IdentityDirectory
	resolver  *Resolver
	hasher    Hasher
	passcodes *Generator
	access    AccessChecker
	logger    *slog.Logger

	// hashSem bounds concurrent hash computations so the deliberately slow
	// path cannot head-of-line block callers under concurrent logins.
	hashSem *semaphore.Weighted
}

// NewManager creates a Manager with the default logger.
func NewManager(store CredentialStore, dir IdentityDirectory, hasher Hasher, passcodes *Generator, access AccessChecker) (*Manager, error) {
	return NewManagerWithLogger(store, dir, hasher, passcodes, access, slog.Default())
}

// NewManagerWithLogger creates a Manager with an explicit logger.
func NewManagerWithLogger(store CredentialStore, dir IdentityDirectory, hasher Hasher, passcodes *Generator, access AccessChecker, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, oops.Code("MANAGER_INVALID_DEPS").Errorf("credential store is required")
	}
	if dir == nil {
		return nil, oops.Code("MANAGER_INVALID_DEPS").Errorf("identity directory is required")
	}
	if hasher == nil {
		return nil, oops.Code("MANAGER_INVALID_DEPS").Errorf("hasher is required")
	}
	if passcodes == nil {
		return nil, oops.Code("MANAGER_INVALID_DEPS").Errorf("passcode generator is required")
	}
	if access == nil {
		return nil, oops.Code("MANAGER_INVALID_DEPS").Errorf("access checker is required")
	}
	if logger == nil {
		return nil, oops.Code("MANAGER_INVALID_DEPS").Errorf("logger is required")
	}

	resolver, err := NewResolver(dir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:     store,
		dir:       dir,
		resolver:  resolver,
		hasher:    hasher,
		passcodes: passcodes,
		access:    access,
		logger:    logger,
		hashSem:   semaphore.NewWeighted(int64(runtime.NumCPU())),
	}, nil
}

// ResolveIdentifier expands a user-supplied identifier (id, slug, or email)
// into candidate identities.
func (m *Manager) ResolveIdentifier(ctx context.Context, identifier string, opts ...ResolveOption) ([]Candidate, error) {
	return m.resolver.Resolve(ctx, identifier, opts...)
}

// invalidLogin is the uniform public-safe login failure. It never reveals
// whether the identifier or the password was wrong.
func invalidLogin() error {
	return oops.Code("CRED_INVALID_LOGIN").
		Errorf("the identifier and password combination is incorrect")
}

// Login attempts to authenticate identifier+password. Exactly one match
// yields LoginAuthenticated; several matching identities yield
// LoginAmbiguous; zero matches fail with CRED_INVALID_LOGIN.
func (m *Manager) Login(ctx context.Context, identifier, password string) (outcome *LoginOutcome, err error) {
	ctx, span := tracer.Start(ctx, "credential.login",
		trace.WithAttributes(attribute.Int("login.identifier_length", len(identifier))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Bool("login.ambiguous", outcome.Kind == LoginAmbiguous))
		}
		span.End()
	}()

	candidates, err := m.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, oops.Code("CRED_LOGIN_FAILED").
			With("operation", "resolve identifier").
			Wrap(err)
	}

	if len(candidates) == 0 {
		// Burn a verification against the dummy hash so an unknown
		// identifier costs the same as a wrong password.
		m.burnVerification(ctx, password)
		loginAttempts.WithLabelValues(outcomeRejected).Inc()
		return nil, invalidLogin()
	}

	matches := make([]Candidate, 0, 1)
	for _, c := range candidates {
		ok, err := m.verifySecret(ctx, c.ID, fieldPassword, password)
		if err != nil {
			// A candidate without a usable credential record is a
			// non-match, not a failure of the whole attempt.
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInactive) {
				continue
			}
			return nil, oops.Code("CRED_LOGIN_FAILED").
				With("operation", "verify password").
				Wrap(err)
		}
		if ok {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		loginAttempts.WithLabelValues(outcomeRejected).Inc()
		return nil, invalidLogin()
	case 1:
		loginAttempts.WithLabelValues(outcomeAuthenticated).Inc()
		return &LoginOutcome{Kind: LoginAuthenticated, IdentityID: matches[0].ID}, nil
	default:
		// Several identities share the contact point. The caller must
		// resubmit with an explicit id; nothing is logged in.
		labels := make(map[ulid.ULID]string, len(matches))
		for _, c := range matches {
			labels[c.ID] = c.Label
		}
		loginAttempts.WithLabelValues(outcomeAmbiguous).Inc()
		return &LoginOutcome{
			Kind:         LoginAmbiguous,
			ContactPoint: identifier,
			Candidates:   labels,
		}, nil
	}
}

// SetCredentials verifies any supplied old secrets and commits new hashes
// for target as a single conditional write. Every successful mutation
// rotates the passcode, invalidating outstanding reset or verify links.
// All steps complete or nothing is persisted.
func (m *Manager) SetCredentials(ctx context.Context, actor string, target ulid.ULID, req ChangeRequest) (*CredentialChange, error) {
	if !m.access.Check(ctx, actor, ActionEdit, CredentialResource(target)) {
		return nil, oops.Code("PERMISSION_DENIED").
			With("actor", actor).
			With("target", target.String()).
			Errorf("actor is not permitted to edit credentials")
	}

	if req.OldPassword != nil {
		ok, err := m.verifySecret(ctx, target, fieldPassword, *req.OldPassword)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, oops.Code("CRED_INVALID_PASSWORD").
				Errorf("could not update credentials; invalid password")
		}
	}

	if req.OldPasscode != nil {
		ok, err := m.verifySecret(ctx, target, fieldPasscode, *req.OldPasscode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, oops.Code("CRED_INVALID_PASSCODE").
				Errorf("could not update credentials; invalid passcode")
		}
	}

	var changes CredentialChanges
	change := &CredentialChange{}

	if req.NewPassword != nil {
		hash, err := m.hashSecret(ctx, *req.NewPassword)
		if err != nil {
			return nil, err
		}
		changes.PasswordHash = &hash
		change.PasswordChanged = true
	}

	passcode, err := m.passcodes.Generate()
	if err != nil {
		return nil, err
	}
	passcodeHash, err := m.hashSecret(ctx, passcode)
	if err != nil {
		return nil, err
	}
	changes.PasscodeHash = &passcodeHash
	change.PasscodeRotated = true
	change.Passcode = passcode

	if err := m.store.Update(ctx, target, changes); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("CRED_NOT_FOUND").
				With("identity_id", target.String()).
				Wrap(err)
		}
		return nil, oops.Code("CRED_UPDATE_FAILED").
			With("identity_id", target.String()).
			Wrap(err)
	}

	if change.PasswordChanged {
		credentialMutations.WithLabelValues(string(fieldPassword)).Inc()
	}
	credentialMutations.WithLabelValues(string(fieldPasscode)).Inc()

	return change, nil
}

// VerifyPassword checks password against the identity's stored password
// hash. A mismatch is (false, nil); only a missing or inactive record, a
// malformed hash, or an infrastructure fault is an error.
func (m *Manager) VerifyPassword(ctx context.Context, identityID ulid.ULID, password string) (bool, error) {
	return m.verifySecret(ctx, identityID, fieldPassword, password)
}

// VerifyPasscode checks passcode against the identity's stored passcode
// hash, with the same semantics as VerifyPassword.
func (m *Manager) VerifyPasscode(ctx context.Context, identityID ulid.ULID, passcode string) (bool, error) {
	return m.verifySecret(ctx, identityID, fieldPasscode, passcode)
}

// VerifyEmailWithPasscode verifies the identity's passcode and, on success,
// marks its contact point verified. A passcode mismatch returns (false, nil);
// rate limiting of this guessable path is the caller's concern.
func (m *Manager) VerifyEmailWithPasscode(ctx context.Context, actor string, target ulid.ULID, passcode string) (bool, error) {
	if !m.access.Check(ctx, actor, ActionEdit, CredentialResource(target)) {
		return false, oops.Code("PERMISSION_DENIED").
			With("actor", actor).
			With("target", target.String()).
			Errorf("actor is not permitted to edit credentials")
	}

	ok, err := m.verifySecret(ctx, target, fieldPasscode, passcode)
	if err != nil || !ok {
		return false, err
	}

	if err := m.dir.MarkContactVerified(ctx, target); err != nil {
		return false, oops.Code("CONTACT_VERIFY_FAILED").
			With("identity_id", target.String()).
			Wrap(err)
	}
	return true, nil
}

// Provision creates the credential record for a newly created identity.
// It is invoked synchronously by the identity-creation workflow. When no
// password is supplied a random unguessable one is generated and hashed so
// that verification code paths stay uniform; a passcode is always generated.
func (m *Manager) Provision(ctx context.Context, identityID ulid.ULID, req ProvisionRequest) (*CredentialRecord, error) {
	password := req.Password
	if password == "" {
		// Hidden password known to no one; the account behaves like any
		// other for verification purposes.
		generated, err := m.passcodes.Generate()
		if err != nil {
			return nil, err
		}
		password = generated
		req.PasswordHashed = false
	}

	passwordHash := password
	if !req.PasswordHashed {
		hash, err := m.hashSecret(ctx, password)
		if err != nil {
			return nil, err
		}
		passwordHash = hash
	}

	passcode := req.Passcode
	if passcode == "" {
		generated, err := m.passcodes.Generate()
		if err != nil {
			return nil, err
		}
		passcode = generated
		req.PasscodeHashed = false
	}

	passcodeHash := passcode
	if !req.PasscodeHashed {
		hash, err := m.hashSecret(ctx, passcode)
		if err != nil {
			return nil, err
		}
		passcodeHash = hash
	}

	record, err := NewCredentialRecord(identityID, &passwordHash, passcodeHash)
	if err != nil {
		return nil, err
	}

	if err := m.store.Create(ctx, record); err != nil {
		return nil, oops.Code("CRED_PROVISION_FAILED").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	return record, nil
}

// verifySecret is the shared verify-by-field routine behind VerifyPassword,
// VerifyPasscode, and the old-secret checks in SetCredentials. A legacy hash
// that matches is transparently re-hashed and persisted (exactly one store
// update, best effort).
func (m *Manager) verifySecret(ctx context.Context, identityID ulid.ULID, field secretField, secret string) (bool, error) {
	record, err := m.store.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, oops.Code("CRED_NOT_FOUND").
				With("identity_id", identityID.String()).
				With("field", string(field)).
				Wrap(err)
		}
		return false, oops.Code("CRED_VERIFY_FAILED").
			With("operation", "get credential record").
			Wrap(err)
	}

	if record.Status != StatusActive {
		return false, oops.Code("IDENTITY_INACTIVE").
			With("identity_id", identityID.String()).
			With("status", string(record.Status)).
			Wrap(ErrInactive)
	}

	var hash string
	switch field {
	case fieldPassword:
		if record.PasswordHash == nil {
			return false, oops.Code("CRED_NOT_FOUND").
				With("identity_id", identityID.String()).
				With("field", string(field)).
				Wrap(ErrNotFound)
		}
		hash = *record.PasswordHash
	case fieldPasscode:
		if record.PasscodeHash == "" {
			return false, oops.Code("CRED_NOT_FOUND").
				With("identity_id", identityID.String()).
				With("field", string(field)).
				Wrap(ErrNotFound)
		}
		hash = record.PasscodeHash
	}

	if err := m.hashSem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("CRED_VERIFY_FAILED").
			With("operation", "acquire hash slot").
			Wrap(err)
	}
	matched, legacy, err := m.hasher.Verify(hash, secret)
	m.hashSem.Release(1)
	if err != nil {
		// A malformed stored hash is a data integrity fault; log loudly.
		errutil.LogError(m.logger, "stored credential hash is malformed", err)
		return false, err
	}

	if matched && legacy {
		m.upgradeHash(ctx, identityID, field, secret)
	}
	return matched, nil
}

// upgradeHash re-hashes secret under the current configuration and persists
// it. Failures are logged and otherwise ignored; the verification already
// succeeded and the legacy hash remains usable.
func (m *Manager) upgradeHash(ctx context.Context, identityID ulid.ULID, field secretField, secret string) {
	hash, err := m.hashSecret(ctx, secret)
	if err != nil {
		errutil.LogError(m.logger, "legacy hash upgrade failed", err)
		return
	}

	changes := CredentialChanges{}
	switch field {
	case fieldPassword:
		changes.PasswordHash = &hash
	case fieldPasscode:
		changes.PasscodeHash = &hash
	}

	if err := m.store.Update(ctx, identityID, changes); err != nil {
		errutil.LogError(m.logger, "legacy hash upgrade failed", err)
		return
	}

	hashUpgrades.Inc()
	m.logger.Info("upgraded legacy credential hash",
		"identity_id", identityID.String(),
		"field", string(field),
	)
}

// hashSecret computes a tagged hash under the concurrency bound.
func (m *Manager) hashSecret(ctx context.Context, secret string) (string, error) {
	if err := m.hashSem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("HASH_FAILED").
			With("operation", "acquire hash slot").
			Wrap(err)
	}
	defer m.hashSem.Release(1)
	return m.hasher.Hash(secret)
}

// burnVerification runs a throwaway verification to keep failure timing
// uniform. The result is discarded.
func (m *Manager) burnVerification(ctx context.Context, secret string) {
	if err := m.hashSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.hashSem.Release(1)
	_, _, _ = m.hasher.Verify(dummyBcryptHash, secret) //nolint:errcheck // timing only
}
