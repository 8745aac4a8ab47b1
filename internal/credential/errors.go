// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import "errors"

// ErrNotFound is returned when a requested identity or credential record
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrInactive is returned when verification is attempted against an identity
// whose status is not active. Verification fails closed for every non-active
// status.
var ErrInactive = errors.New("identity is not active")
