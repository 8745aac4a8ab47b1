// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package credential

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/samber/oops"
)

// PasscodeAlphabet is the 62-character alphanumeric set passcodes are drawn
// from.
const PasscodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Passcode length configuration. Earlier deployments issued 8-character
// codes; longer codes strictly increase entropy and 40 is the current
// default.
const (
	DefaultPasscodeLength = 40
	MinPasscodeLength     = 8
)

// Generator produces fixed-length random passcodes from a CSPRNG.
//
// Passcodes gate password resets, so a general-purpose pseudo-random source
// is not acceptable here: all randomness comes from crypto/rand.
type Generator struct {
	length int
}

// NewGenerator creates a Generator at DefaultPasscodeLength.
func NewGenerator() *Generator {
	return &Generator{length: DefaultPasscodeLength}
}

// NewGeneratorWithLength creates a Generator producing codes of the given
// length.
func NewGeneratorWithLength(length int) (*Generator, error) {
	if length < MinPasscodeLength {
		return nil, oops.Code("PASSCODE_INVALID_LENGTH").
			With("length", length).
			With("min", MinPasscodeLength).
			Errorf("passcode length %d below minimum %d", length, MinPasscodeLength)
	}
	return &Generator{length: length}, nil
}

// Length returns the configured passcode length.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a fresh random passcode. Each verification or resend
// cycle generates a new code, invalidating the previous one.
func (g *Generator) Generate() (string, error) {
	var sb strings.Builder
	sb.Grow(g.length)
	max := big.NewInt(int64(len(PasscodeAlphabet)))
	for range g.length {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", oops.Code("PASSCODE_GENERATE_FAILED").Wrap(err)
		}
		sb.WriteByte(PasscodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
