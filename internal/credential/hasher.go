// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"errors"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// Hash algorithm tags. The tag prefixes every stored hash and selects the
// verification strategy; unknown tags are a data integrity fault.
const (
	AlgorithmBcrypt = "bcrypt"
	tagSeparator    = ":"
)

// DefaultBcryptCost is the work factor for newly issued hashes. Hashes
// verified at a lower cost are reported as legacy so callers can re-hash.
const DefaultBcryptCost = 12

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("HASH_EMPTY_SECRET").Errorf("secret cannot be empty")

// Hasher produces and verifies tagged salted hashes.
type Hasher interface {
	// Hash derives a salted hash of secret and returns it tagged with the
	// current algorithm. A fresh salt is generated on every call.
	Hash(secret string) (string, error)

	// Verify checks secret against a tagged hash.
	// Returns (matched, legacy, nil) where legacy reports that the hash
	// matched but was produced under an outdated configuration and should
	// be replaced. A mismatch is (false, false, nil), not an error; only a
	// malformed or unsupported tag is an error.
	Verify(tagged, secret string) (matched, legacy bool, err error)
}

// BcryptHasher implements Hasher using bcrypt-tagged hashes.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher at DefaultBcryptCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: DefaultBcryptCost}
}

// NewBcryptHasherWithCost creates a BcryptHasher with a custom work factor.
// Tests use bcrypt.MinCost to keep the deliberately slow path fast.
func NewBcryptHasherWithCost(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("HASH_INVALID_COST").
			With("cost", cost).
			With("min", bcrypt.MinCost).
			With("max", bcrypt.MaxCost).
			Errorf("bcrypt cost %d out of range", cost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash derives a bcrypt hash of secret. bcrypt generates its own random
// salt per call, so two hashes of the same secret never collide.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	raw, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		// Entropy or computation failure is fatal, not retried.
		return "", oops.Code("HASH_FAILED").Wrap(err)
	}
	return AlgorithmBcrypt + tagSeparator + string(raw), nil
}

// Verify checks secret against a tagged hash.
func (h *BcryptHasher) Verify(tagged, secret string) (matched, legacy bool, err error) {
	algorithm, encoded, ok := strings.Cut(tagged, tagSeparator)
	if !ok || encoded == "" {
		return false, false, oops.Code("HASH_MALFORMED").
			Errorf("hash is missing an algorithm tag")
	}

	switch algorithm {
	case AlgorithmBcrypt:
		return h.verifyBcrypt(encoded, secret)
	default:
		return false, false, oops.Code("HASH_MALFORMED").
			With("algorithm", algorithm).
			Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

func (h *BcryptHasher) verifyBcrypt(encoded, secret string) (matched, legacy bool, err error) {
	if err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, false, nil
		}
		// Anything else means the stored hash itself is corrupt.
		return false, false, oops.Code("HASH_MALFORMED").Wrap(err)
	}

	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return false, false, oops.Code("HASH_MALFORMED").Wrap(err)
	}
	return true, cost < h.cost, nil
}
