// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyward/keyward/internal/credential"
	"github.com/keyward/keyward/internal/credential/credentialtest"
	"github.com/keyward/keyward/pkg/errutil"
)

// newTestManager wires a Manager over in-memory fakes with a fast hasher.
func newTestManager(t *testing.T, store *credentialtest.Store, dir *credentialtest.Directory, access credential.AccessChecker) *credential.Manager {
	t.Helper()

	hasher, err := credential.NewBcryptHasherWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	generator, err := credential.NewGeneratorWithLength(credential.MinPasscodeLength)
	require.NoError(t, err)

	manager, err := credential.NewManager(store, dir, hasher, generator, access)
	require.NoError(t, err)
	return manager
}

// provision registers an active identity with credentials and returns its id.
func provision(t *testing.T, manager *credential.Manager, dir *credentialtest.Directory, slug, email, password string) ulid.ULID {
	t.Helper()

	identity := credential.Identity{
		ID:     ulid.Make(),
		Slug:   slug,
		Label:  slug,
		Status: credential.StatusActive,
	}
	if email != "" {
		identity.Email = &email
	}
	dir.Add(identity)

	_, err := manager.Provision(t.Context(), identity.ID, credential.ProvisionRequest{
		Password: password,
	})
	require.NoError(t, err)
	return identity.ID
}

func TestManager_Login(t *testing.T) {
	store := credentialtest.NewStore()
	dir := credentialtest.NewDirectory()
	manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
	ctx := t.Context()

	aliceID := provision(t, manager, dir, "alice", "alice@example.com", "alice-password")

	t.Run("authenticates by slug", func(t *testing.T) {
		outcome, err := manager.Login(ctx, "alice", "alice-password")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginAuthenticated, outcome.Kind)
		assert.Equal(t, aliceID, outcome.IdentityID)
	})

	t.Run("authenticates by email", func(t *testing.T) {
		outcome, err := manager.Login(ctx, "alice@example.com", "alice-password")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginAuthenticated, outcome.Kind)
		assert.Equal(t, aliceID, outcome.IdentityID)
	})

	t.Run("wrong password is rejected generically", func(t *testing.T) {
		_, err := manager.Login(ctx, "alice", "wrong")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CRED_INVALID_LOGIN")
	})

	t.Run("unknown identifier gets the same rejection", func(t *testing.T) {
		_, err := manager.Login(ctx, "nobody", "whatever")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CRED_INVALID_LOGIN")
	})

	t.Run("inactive identity cannot log in", func(t *testing.T) {
		inactiveID := provision(t, manager, dir, "mallory", "", "mallory-password")
		store.SetStatus(inactiveID, credential.StatusInactive)

		_, err := manager.Login(ctx, "mallory", "mallory-password")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CRED_INVALID_LOGIN")
	})
}

func TestManager_Login_Ambiguous(t *testing.T) {
	store := credentialtest.NewStore()
	dir := credentialtest.NewDirectory()
	manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
	ctx := t.Context()

	// Two identities share an email and, unluckily, a password.
	firstID := provision(t, manager, dir, "twin-one", "twins@example.com", "shared-password")
	secondID := provision(t, manager, dir, "twin-two", "twins@example.com", "shared-password")

	t.Run("both matches reported, nobody logged in", func(t *testing.T) {
		outcome, err := manager.Login(ctx, "twins@example.com", "shared-password")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginAmbiguous, outcome.Kind)
		assert.Equal(t, "twins@example.com", outcome.ContactPoint)
		assert.Contains(t, outcome.Candidates, firstID)
		assert.Contains(t, outcome.Candidates, secondID)
		assert.Equal(t, "twin-one", outcome.Candidates[firstID])
	})

	t.Run("explicit id disambiguates", func(t *testing.T) {
		outcome, err := manager.Login(ctx, firstID.String(), "shared-password")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginAuthenticated, outcome.Kind)
		assert.Equal(t, firstID, outcome.IdentityID)
	})

	t.Run("only one password match is unambiguous", func(t *testing.T) {
		soloID := provision(t, manager, dir, "twin-three", "twins@example.com", "solo-password")
		outcome, err := manager.Login(ctx, "twins@example.com", "solo-password")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginAuthenticated, outcome.Kind)
		assert.Equal(t, soloID, outcome.IdentityID)
	})
}

func TestManager_SetCredentials(t *testing.T) {
	ctx := t.Context()

	t.Run("password change rotates the passcode too", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
		id := provision(t, manager, dir, "alice", "", "old-password")

		before, err := store.Get(ctx, id)
		require.NoError(t, err)

		change, err := manager.SetCredentials(ctx, credential.IdentitySubject(id), id, credential.ChangeRequest{
			OldPassword: strptr("old-password"),
			NewPassword: strptr("new-password"),
		})
		require.NoError(t, err)
		assert.True(t, change.PasswordChanged)
		assert.True(t, change.PasscodeRotated)
		assert.NotEmpty(t, change.Passcode)

		after, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, *before.PasswordHash, *after.PasswordHash)
		assert.NotEqual(t, before.PasscodeHash, after.PasscodeHash)

		ok, err := manager.VerifyPassword(ctx, id, "new-password")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = manager.VerifyPasscode(ctx, id, change.Passcode)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bare rotation needs no old secret", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
		id := provision(t, manager, dir, "alice", "", "password")

		change, err := manager.SetCredentials(ctx, credential.SubjectSystem, id, credential.ChangeRequest{})
		require.NoError(t, err)
		assert.False(t, change.PasswordChanged)
		assert.True(t, change.PasscodeRotated)

		// The password is untouched.
		ok, err := manager.VerifyPassword(ctx, id, "password")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong old password persists nothing", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
		id := provision(t, manager, dir, "alice", "", "right-password")

		before, err := store.Get(ctx, id)
		require.NoError(t, err)
		updatesBefore := store.Updates

		_, err = manager.SetCredentials(ctx, credential.IdentitySubject(id), id, credential.ChangeRequest{
			OldPassword: strptr("wrong-password"),
			NewPassword: strptr("new-password"),
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CRED_INVALID_PASSWORD")

		after, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, *before.PasswordHash, *after.PasswordHash)
		assert.Equal(t, before.PasscodeHash, after.PasscodeHash)
		assert.Equal(t, updatesBefore, store.Updates)
	})

	t.Run("old passcode gate", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
		id := provision(t, manager, dir, "alice", "", "password")

		// Rotate once to learn the current plaintext passcode.
		change, err := manager.SetCredentials(ctx, credential.SubjectSystem, id, credential.ChangeRequest{})
		require.NoError(t, err)

		_, err = manager.SetCredentials(ctx, credential.IdentitySubject(id), id, credential.ChangeRequest{
			OldPasscode: strptr("definitely-wrong"),
			NewPassword: strptr("new-password"),
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CRED_INVALID_PASSCODE")

		next, err := manager.SetCredentials(ctx, credential.IdentitySubject(id), id, credential.ChangeRequest{
			OldPasscode: strptr(change.Passcode),
			NewPassword: strptr("new-password"),
		})
		require.NoError(t, err)
		assert.True(t, next.PasswordChanged)

		// The used passcode was rotated away.
		ok, err := manager.VerifyPasscode(ctx, id, change.Passcode)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("permission denied", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.DenyAll{})
		id := ulid.Make()

		_, err := manager.SetCredentials(ctx, "identity:someone-else", id, credential.ChangeRequest{})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "PERMISSION_DENIED")
	})

	t.Run("vanished record", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
		id := provision(t, manager, dir, "alice", "", "password")
		store.Delete(id)

		_, err := manager.SetCredentials(ctx, credential.SubjectSystem, id, credential.ChangeRequest{})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CRED_NOT_FOUND")
	})
}

func TestManager_VerifySecret(t *testing.T) {
	ctx := t.Context()

	t.Run("missing record", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})

		_, err := manager.VerifyPassword(ctx, ulid.Make(), "password")
		require.Error(t, err)
		require.ErrorIs(t, err, credential.ErrNotFound)
	})

	t.Run("inactive identity fails closed", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
		id := provision(t, manager, dir, "alice", "", "password")
		store.SetStatus(id, credential.StatusDeleted)

		_, err := manager.VerifyPassword(ctx, id, "password")
		require.Error(t, err)
		require.ErrorIs(t, err, credential.ErrInactive)
	})
}

func TestManager_LegacyHashUpgrade(t *testing.T) {
	ctx := t.Context()

	store := credentialtest.NewStore()
	dir := credentialtest.NewDirectory()

	// Seed a record hashed at the lowest cost.
	lowHasher, err := credential.NewBcryptHasherWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	legacyHash, err := lowHasher.Hash("password")
	require.NoError(t, err)

	id := ulid.Make()
	identity := credential.Identity{ID: id, Slug: "alice", Label: "alice", Status: credential.StatusActive}
	dir.Add(identity)
	passcodeHash, err := lowHasher.Hash("GOODCODE")
	require.NoError(t, err)
	record, err := credential.NewCredentialRecord(id, &legacyHash, passcodeHash)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, record))

	// A manager configured at a higher cost sees the hash as legacy.
	highHasher, err := credential.NewBcryptHasherWithCost(bcrypt.MinCost + 1)
	require.NoError(t, err)
	generator, err := credential.NewGeneratorWithLength(credential.MinPasscodeLength)
	require.NoError(t, err)
	manager, err := credential.NewManager(store, dir, highHasher, generator, credentialtest.AllowAll{})
	require.NoError(t, err)

	t.Run("matching legacy hash is upgraded once", func(t *testing.T) {
		ok, err := manager.VerifyPassword(ctx, id, "password")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, store.Updates)

		after, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, legacyHash, *after.PasswordHash)

		// The upgraded hash still verifies, with no further writes.
		ok, err = manager.VerifyPassword(ctx, id, "password")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, store.Updates)
	})

	t.Run("upgrade failure does not fail verification", func(t *testing.T) {
		store.SetStatus(id, credential.StatusActive)
		store.FailUpdate = credential.ErrNotFound
		defer func() { store.FailUpdate = nil }()

		ok, err := manager.VerifyPasscode(ctx, id, "GOODCODE")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestManager_VerifyEmailWithPasscode(t *testing.T) {
	ctx := t.Context()

	store := credentialtest.NewStore()
	dir := credentialtest.NewDirectory()
	manager := newTestManager(t, store, dir, credentialtest.AllowAll{})
	id := provision(t, manager, dir, "alice", "alice@example.com", "password")

	change, err := manager.SetCredentials(ctx, credential.SubjectSystem, id, credential.ChangeRequest{})
	require.NoError(t, err)

	t.Run("wrong passcode does not verify", func(t *testing.T) {
		ok, err := manager.VerifyEmailWithPasscode(ctx, credential.SubjectSystem, id, "WRONGCODE")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, dir.Verified(id))
	})

	t.Run("correct passcode marks contact verified", func(t *testing.T) {
		ok, err := manager.VerifyEmailWithPasscode(ctx, credential.SubjectSystem, id, change.Passcode)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, dir.Verified(id))
	})

	t.Run("permission denied", func(t *testing.T) {
		denied := newTestManager(t, store, dir, credentialtest.DenyAll{})
		_, err := denied.VerifyEmailWithPasscode(ctx, "identity:stranger", id, change.Passcode)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "PERMISSION_DENIED")
	})
}

func TestManager_Provision(t *testing.T) {
	ctx := t.Context()

	t.Run("with explicit password", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})

		id := ulid.Make()
		record, err := manager.Provision(ctx, id, credential.ProvisionRequest{Password: "chosen"})
		require.NoError(t, err)
		require.NotNil(t, record.PasswordHash)
		assert.NotEmpty(t, record.PasscodeHash)

		ok, err := manager.VerifyPassword(ctx, id, "chosen")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("without password generates a hidden one", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})

		id := ulid.Make()
		record, err := manager.Provision(ctx, id, credential.ProvisionRequest{})
		require.NoError(t, err)
		require.NotNil(t, record.PasswordHash)

		// Nobody knows the hidden password; an empty guess does not match.
		ok, err := manager.VerifyPassword(ctx, id, "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pre-hashed inputs are stored verbatim", func(t *testing.T) {
		store := credentialtest.NewStore()
		dir := credentialtest.NewDirectory()
		manager := newTestManager(t, store, dir, credentialtest.AllowAll{})

		hasher, err := credential.NewBcryptHasherWithCost(bcrypt.MinCost)
		require.NoError(t, err)
		passwordHash, err := hasher.Hash("imported")
		require.NoError(t, err)
		passcodeHash, err := hasher.Hash("IMPORTEDCODE")
		require.NoError(t, err)

		id := ulid.Make()
		record, err := manager.Provision(ctx, id, credential.ProvisionRequest{
			Password:       passwordHash,
			PasswordHashed: true,
			Passcode:       passcodeHash,
			PasscodeHashed: true,
		})
		require.NoError(t, err)
		assert.Equal(t, passwordHash, *record.PasswordHash)
		assert.Equal(t, passcodeHash, record.PasscodeHash)

		ok, err := manager.VerifyPassword(ctx, id, "imported")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNewManager_Validation(t *testing.T) {
	store := credentialtest.NewStore()
	dir := credentialtest.NewDirectory()
	hasher := credential.NewBcryptHasher()
	generator := credential.NewGenerator()

	tests := []struct {
		name string
		run  func() error
	}{
		{"nil store", func() error {
			_, err := credential.NewManager(nil, dir, hasher, generator, credentialtest.AllowAll{})
			return err
		}},
		{"nil directory", func() error {
			_, err := credential.NewManager(store, nil, hasher, generator, credentialtest.AllowAll{})
			return err
		}},
		{"nil hasher", func() error {
			_, err := credential.NewManager(store, dir, nil, generator, credentialtest.AllowAll{})
			return err
		}},
		{"nil generator", func() error {
			_, err := credential.NewManager(store, dir, hasher, nil, credentialtest.AllowAll{})
			return err
		}},
		{"nil access checker", func() error {
			_, err := credential.NewManager(store, dir, hasher, generator, nil)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "MANAGER_INVALID_DEPS")
		})
	}
}
