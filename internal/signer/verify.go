// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/dotandev/padesign/internal/errors"
)

// VerifySignature checks an RSA PKCS#1 v1.5 / SHA-256 signature over data.
// Any mismatch returns ErrInvalidSignature and nothing else.
func VerifySignature(pub *rsa.PublicKey, data, signature []byte) error {
	if pub == nil || len(signature) == 0 {
		return errors.ErrInvalidSignature
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return errors.ErrInvalidSignature
	}
	return nil
}

// Verify is the boolean form of VerifySignature.
func Verify(pub *rsa.PublicKey, data, signature []byte) bool {
	return VerifySignature(pub, data, signature) == nil
}

// VerifyPEM parses a PEM public key and verifies the signature. An
// unparseable key is reported as a *SignerError, not as an invalid signature.
func VerifyPEM(publicKeyPEM, data, signature []byte) (bool, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false, err
	}
	return Verify(pub, data, signature), nil
}
