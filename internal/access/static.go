// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package access

import (
	"context"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// selfPlaceholder in a permission pattern is replaced with the subject's id
// at check time, so "edit:credential:$self" lets an identity edit only its
// own credentials.
const selfPlaceholder = "$self"

// StaticChecker implements Checker with static role definitions.
//
// Thread-safety: roles is immutable after construction and requires no
// synchronization. Only subjects is mutable and protected by mu.
type StaticChecker struct {
	roles    map[string][]permission // roleName → permission patterns (immutable)
	subjects map[string]string       // subjectID → roleName (mutable, protected by mu)
	mu       sync.RWMutex            // protects subjects only
}

// permission holds a pattern and, when the pattern has no $self
// placeholder, its precompiled glob.
type permission struct {
	pattern string
	glob    glob.Glob // nil when pattern contains $self
}

// NewStaticChecker creates a static checker with the default roles.
//
// Panics if default roles contain invalid permission patterns
// (configuration bug).
func NewStaticChecker() *StaticChecker {
	c, err := NewStaticCheckerWithRoles(DefaultRoles())
	if err != nil {
		panic("invalid permission pattern in DefaultRoles: " + err.Error())
	}
	return c
}

// NewStaticCheckerWithRoles creates a static checker with custom roles.
// Returns an error if any permission pattern fails to compile.
func NewStaticCheckerWithRoles(roles map[string][]string) (*StaticChecker, error) {
	compiled := make(map[string][]permission, len(roles))
	for role, patterns := range roles {
		perms := make([]permission, 0, len(patterns))
		for _, p := range patterns {
			perm := permission{pattern: p}
			if !strings.Contains(p, selfPlaceholder) {
				g, err := glob.Compile(p, ':')
				if err != nil {
					return nil, oops.In("access").
						Code("INVALID_PERMISSION_PATTERN").
						With("role", role).
						With("pattern", p).
						Wrap(err)
				}
				perm.glob = g
			}
			perms = append(perms, perm)
		}
		compiled[role] = perms
	}

	return &StaticChecker{
		roles:    compiled,
		subjects: make(map[string]string),
	}, nil
}

// AssignRole binds a subject to a role. Unknown roles deny everything.
func (s *StaticChecker) AssignRole(subject, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject] = role
}

// Check implements Checker.
func (s *StaticChecker) Check(_ context.Context, subject, action, resource string) bool {
	// System always allowed.
	if subject == "system" {
		return true
	}
	if subject == "" {
		return false
	}

	s.mu.RLock()
	role, ok := s.subjects[subject]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	perms, ok := s.roles[role]
	if !ok {
		return false
	}

	_, subjectID := ParseSubject(subject)
	candidate := action + ":" + resource

	for _, perm := range perms {
		if perm.glob != nil {
			if perm.glob.Match(candidate) {
				return true
			}
			continue
		}
		// $self patterns are compiled per check against the subject id.
		expanded := strings.ReplaceAll(perm.pattern, selfPlaceholder, subjectID)
		g, err := glob.Compile(expanded, ':')
		if err != nil {
			continue
		}
		if g.Match(candidate) {
			return true
		}
	}
	return false
}
