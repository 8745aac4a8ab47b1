// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package access provides authorization for credential operations.
//
// All parameters use prefixed string format:
//   - subject: "identity:01ABC", "service:notifier", "system"
//   - action: "read", "edit", "send"
//   - resource: "credential:01ABC", "credential:*"
package access

import (
	"context"
	"strings"
)

// Checker authorizes a subject to perform an action on a resource.
// Returns false for unknown subjects or denied permissions (deny by
// default).
type Checker interface {
	Check(ctx context.Context, subject, action, resource string) bool
}

// ParseSubject splits a subject string into prefix and ID.
// Returns ("system", "") for "system".
// Returns ("", subject) if no colon separator found.
func ParseSubject(subject string) (prefix, id string) {
	if subject == "" {
		return "", ""
	}
	if subject == "system" {
		return "system", ""
	}
	parts := strings.SplitN(subject, ":", 2)
	if len(parts) == 1 {
		return "", subject
	}
	return parts[0], parts[1]
}
