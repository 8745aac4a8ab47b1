// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package credential implements the password-based credential core.
//
// # Domain Types
//
// A CredentialRecord holds the current password and passcode hashes for one
// identity. Records are created by Manager.Provision when an identity comes
// into existence and mutated only through Manager.SetCredentials, which
// persists password and passcode changes as a single conditional write.
//
// Hashes are tagged strings of the form "<algorithm>:<encoded>". The tag is
// the compatibility channel for introducing new hash algorithms: verifying a
// hash that matches but was produced under an outdated configuration reports
// it as legacy, and the manager transparently re-hashes and persists the
// secret under the current configuration.
//
// # Services
//
//   - Manager - login, credential mutation, passcode verification flows
//   - Resolver - maps a user-supplied identifier (id, slug, or email) to
//     candidate identities
//   - Generator - random alphanumeric passcodes for reset/verify flows
//
// Storage is behind the CredentialStore and IdentityDirectory interfaces;
// see the postgres subpackage for the pgx implementations and credentialtest
// for in-memory fakes.
package credential
