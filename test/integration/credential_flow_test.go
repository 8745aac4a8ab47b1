// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

//go:build integration

package integration

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/oklog/ulid/v2"

	"github.com/keyward/keyward/internal/credential"
	"github.com/keyward/keyward/internal/events"
)

// newIdentity creates an identity row plus credentials and returns its id.
func newIdentity(slug, email, password string) ulid.ULID {
	GinkgoHelper()

	identity := &credential.Identity{
		ID:     ulid.Make(),
		Slug:   slug,
		Label:  slug,
		Status: credential.StatusActive,
	}
	if email != "" {
		identity.Email = &email
	}
	Expect(env.identities.Create(env.ctx, identity)).To(Succeed())

	_, err := env.manager.Provision(env.ctx, identity.ID, credential.ProvisionRequest{
		Password: password,
	})
	Expect(err).NotTo(HaveOccurred())
	return identity.ID
}

var _ = Describe("Credential lifecycle", func() {
	It("provisions and authenticates by slug and email", func() {
		id := newIdentity("flow-alice", "flow-alice@example.com", "alice-password")

		outcome, err := env.manager.Login(env.ctx, "flow-alice", "alice-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal(credential.LoginAuthenticated))
		Expect(outcome.IdentityID).To(Equal(id))

		outcome, err = env.manager.Login(env.ctx, "flow-alice@example.com", "alice-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal(credential.LoginAuthenticated))
	})

	It("rejects a wrong password without detail", func() {
		newIdentity("flow-bob", "", "bob-password")

		_, err := env.manager.Login(env.ctx, "flow-bob", "wrong")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).NotTo(ContainSubstring("flow-bob"))
	})

	It("reports ambiguity when identities share an email and password", func() {
		first := newIdentity("flow-twin-1", "flow-twins@example.com", "twin-password")
		second := newIdentity("flow-twin-2", "flow-twins@example.com", "twin-password")

		outcome, err := env.manager.Login(env.ctx, "flow-twins@example.com", "twin-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal(credential.LoginAmbiguous))
		Expect(outcome.Candidates).To(HaveKey(first))
		Expect(outcome.Candidates).To(HaveKey(second))

		// An explicit id resolves the ambiguity.
		outcome, err = env.manager.Login(env.ctx, first.String(), "twin-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal(credential.LoginAuthenticated))
		Expect(outcome.IdentityID).To(Equal(first))
	})

	It("changes a password and rotates the passcode", func() {
		id := newIdentity("flow-carol", "", "old-password")

		oldPassword := "old-password"
		newPassword := "new-password"
		change, err := env.manager.SetCredentials(env.ctx, credential.SubjectSystem, id,
			credential.ChangeRequest{OldPassword: &oldPassword, NewPassword: &newPassword})
		Expect(err).NotTo(HaveOccurred())
		Expect(change.PasswordChanged).To(BeTrue())
		Expect(change.PasscodeRotated).To(BeTrue())

		ok, err := env.manager.VerifyPassword(env.ctx, id, "new-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = env.manager.VerifyPassword(env.ctx, id, "old-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		ok, err = env.manager.VerifyPasscode(env.ctx, id, change.Passcode)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("refuses a change with the wrong old password and persists nothing", func() {
		id := newIdentity("flow-dave", "", "dave-password")

		before, err := env.credentials.Get(env.ctx, id)
		Expect(err).NotTo(HaveOccurred())

		wrong := "wrong"
		newPassword := "new-password"
		_, err = env.manager.SetCredentials(env.ctx, credential.SubjectSystem, id,
			credential.ChangeRequest{OldPassword: &wrong, NewPassword: &newPassword})
		Expect(err).To(HaveOccurred())

		after, err := env.credentials.Get(env.ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(*after.PasswordHash).To(Equal(*before.PasswordHash))
		Expect(after.PasscodeHash).To(Equal(before.PasscodeHash))
	})
})

var _ = Describe("Passcode dispatch", func() {
	It("rotates and delivers passcodes for a shared contact point", func() {
		first := newIdentity("flow-send-1", "flow-send@example.com", "pw-1")
		second := newIdentity("flow-send-2", "flow-send@example.com", "pw-2")

		ch := env.broadcaster.Subscribe(events.TypePasscodeSent)
		defer env.broadcaster.Unsubscribe(events.TypePasscodeSent, ch)

		err := env.dispatcher.SendPasscodes(env.ctx,
			[]ulid.ULID{first, second}, credential.UsageReset)
		Expect(err).NotTo(HaveOccurred())

		var event events.Event
		Eventually(ch).Should(Receive(&event))

		var payload credential.PasscodeSent
		Expect(json.Unmarshal(event.Payload, &payload)).To(Succeed())
		Expect(payload.ContactPoint).To(Equal("flow-send@example.com"))
		Expect(payload.Issued).To(HaveLen(2))

		for _, issue := range payload.Issued {
			ok, err := env.manager.VerifyPasscode(env.ctx, issue.IdentityID, issue.Passcode)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}
	})

	It("refuses a mismatched batch before any write", func() {
		first := newIdentity("flow-mismatch-1", "flow-m1@example.com", "pw")
		second := newIdentity("flow-mismatch-2", "flow-m2@example.com", "pw")

		before, err := env.credentials.Get(env.ctx, first)
		Expect(err).NotTo(HaveOccurred())

		err = env.dispatcher.SendPasscodes(env.ctx,
			[]ulid.ULID{first, second}, credential.UsageReset)
		Expect(err).To(HaveOccurred())

		after, err := env.credentials.Get(env.ctx, first)
		Expect(err).NotTo(HaveOccurred())
		Expect(after.PasscodeHash).To(Equal(before.PasscodeHash))
	})

	It("verifies a contact point with a dispatched passcode", func() {
		id := newIdentity("flow-verify", "flow-verify@example.com", "pw")

		ch := env.broadcaster.Subscribe(events.TypePasscodeSent)
		defer env.broadcaster.Unsubscribe(events.TypePasscodeSent, ch)

		Expect(env.dispatcher.SendPasscodes(env.ctx,
			[]ulid.ULID{id}, credential.UsageVerify)).To(Succeed())

		var event events.Event
		Eventually(ch).Should(Receive(&event))
		var payload credential.PasscodeSent
		Expect(json.Unmarshal(event.Payload, &payload)).To(Succeed())

		ok, err := env.manager.VerifyEmailWithPasscode(env.ctx, credential.SubjectSystem,
			id, payload.Issued[0].Passcode)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		identity, err := env.identities.Get(env.ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(identity.EmailVerified).To(BeTrue())

		// Verification alone does not rotate the passcode.
		ok, err = env.manager.VerifyPasscode(env.ctx, id, payload.Issued[0].Passcode)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
})
