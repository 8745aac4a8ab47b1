// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// Resolver maps a user-supplied identifier to candidate identities.
type Resolver struct {
	dir IdentityDirectory
}

// NewResolver creates a Resolver.
func NewResolver(dir IdentityDirectory) (*Resolver, error) {
	if dir == nil {
		return nil, oops.Code("RESOLVER_INVALID_DEPS").Errorf("identity directory is required")
	}
	return &Resolver{dir: dir}, nil
}

// resolveOptions holds optional Resolve behavior.
type resolveOptions struct {
	errorIfMissing bool
}

// ResolveOption customizes a Resolve call.
type ResolveOption func(*resolveOptions)

// ErrorIfMissing makes Resolve fail with ErrNotFound instead of returning an
// empty candidate list.
func ErrorIfMissing() ResolveOption {
	return func(o *resolveOptions) {
		o.errorIfMissing = true
	}
}

// Resolve expands identifier into candidate identities. An identifier
// containing '@' is treated as an email and may match several active
// identities; anything else is an exact id-or-slug lookup yielding at most
// one. Result order is not significant. An empty result is not an error
// unless ErrorIfMissing is given.
func (r *Resolver) Resolve(ctx context.Context, identifier string, opts ...ResolveOption) ([]Candidate, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	var candidates []Candidate
	if strings.Contains(identifier, "@") {
		identities, err := r.dir.LookupByEmail(ctx, identifier)
		if err != nil {
			return nil, oops.Code("RESOLVE_FAILED").
				With("operation", "lookup by email").
				Wrap(err)
		}
		candidates = make([]Candidate, 0, len(identities))
		for _, id := range identities {
			candidates = append(candidates, Candidate{ID: id.ID, Label: id.Label})
		}
	} else {
		identity, err := r.dir.LookupByIDOrSlug(ctx, identifier)
		switch {
		case errors.Is(err, ErrNotFound):
			// Empty result; handled below.
		case err != nil:
			return nil, oops.Code("RESOLVE_FAILED").
				With("operation", "lookup by id or slug").
				Wrap(err)
		default:
			candidates = []Candidate{{ID: identity.ID, Label: identity.Label}}
		}
	}

	if len(candidates) == 0 && o.errorIfMissing {
		return nil, oops.Code("RESOLVE_NOT_FOUND").
			With("identifier", identifier).
			Wrap(ErrNotFound)
	}
	return candidates, nil
}
