// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package access

// Permission groups define reusable sets of permissions.
// Roles compose these groups rather than inheriting.

var identityPowers = []string{
	// Self access: an identity manages its own credentials.
	"read:credential:$self",
	"edit:credential:$self",
}

var supportPowers = []string{
	// Support staff can inspect any credential record and trigger
	// passcode sends, but never set passwords directly.
	"read:credential:*",
	"send:passcode:*",
}

var adminPowers = []string{
	// Full access
	"read:**",
	"edit:**",
	"send:**",
}

// DefaultRoles returns the default role definitions.
// Roles compose permission groups explicitly (no inheritance).
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"identity": identityPowers,
		"support":  compose(identityPowers, supportPowers),
		"admin":    compose(identityPowers, supportPowers, adminPowers),
	}
}

// compose merges multiple permission slices into one.
func compose(groups ...[]string) []string {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]string, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}
