// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"bytes"
	"crypto/sha256"
	"strconv"

	"github.com/dotandev/padesign/internal/errors"
)

// PIN is a positive integer PIN held in its canonical decimal form. The
// buffer is owned by the PIN and should be wiped once the key is derived.
type PIN struct {
	digits []byte
}

// ParsePIN validates user input and returns the canonical PIN. Leading zeros
// are dropped so that "0012" and "12" derive the same key.
func ParsePIN(input string) (PIN, error) {
	return ParsePINBytes([]byte(input))
}

// ParsePINBytes is ParsePIN for raw input. The PIN gets its own copy of the
// digits, so the caller can wipe input with WipeBytes right after.
func ParsePINBytes(input []byte) (PIN, error) {
	s := bytes.TrimSpace(input)
	s = bytes.TrimPrefix(s, []byte("+"))
	if len(s) == 0 {
		return PIN{}, errors.WrapInvalidPin("PIN is empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return PIN{}, errors.WrapInvalidPin("PIN must contain digits only")
		}
	}
	s = bytes.TrimLeft(s, "0")
	if len(s) == 0 {
		return PIN{}, errors.WrapInvalidPin("PIN must be a positive number")
	}
	digits := make([]byte, len(s))
	copy(digits, s)
	return PIN{digits: digits}, nil
}

// PINFromInt builds a PIN from a number.
func PINFromInt(n int64) (PIN, error) {
	if n <= 0 {
		return PIN{}, errors.WrapInvalidPin("PIN must be a positive number")
	}
	return PIN{digits: []byte(strconv.FormatInt(n, 10))}, nil
}

// Valid reports whether the PIN holds digits.
func (p PIN) Valid() bool {
	return len(p.digits) > 0
}

// Equal compares two PINs by canonical value.
func (p PIN) Equal(other PIN) bool {
	return p.Valid() && string(p.digits) == string(other.digits)
}

// String never reveals the PIN.
func (p PIN) String() string {
	return "PIN(****)"
}

// Wipe zeroes the digit buffer. The PIN is invalid afterwards.
func (p *PIN) Wipe() {
	zeroBytes(p.digits)
	p.digits = nil
}

// DeriveKey hashes the canonical PIN with a single SHA-256 pass and returns
// the 32-byte digest as the AES-256 wrapping key.
func DeriveKey(p PIN) ([]byte, error) {
	if !p.Valid() {
		return nil, errors.WrapInvalidPin("PIN is empty")
	}
	sum := sha256.Sum256(p.digits)
	key := make([]byte, KeySize)
	copy(key, sum[:])
	zeroBytes(sum[:])
	return key, nil
}

// WipeBytes zeroes raw secret input such as a PIN line read from a prompt.
func WipeBytes(b []byte) {
	zeroBytes(b)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
