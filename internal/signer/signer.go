// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package signer

import "fmt"

// Signer is the generic interface for detached signing operations.
type Signer interface {
	// Sign produces a detached signature over the provided document bytes.
	Sign(data []byte) ([]byte, error)

	// PublicKey returns the PEM-encoded public key matching the signing key.
	PublicKey() ([]byte, error)

	// Algorithm returns the signing algorithm name.
	Algorithm() string
}

// SignerError represents an error originating from a signing operation.
type SignerError struct {
	Op  string
	Msg string
	Err error
}

func (e *SignerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *SignerError) Unwrap() error {
	return e.Err
}
