// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
)

// AlgorithmRSASHA256 names RSA PKCS#1 v1.5 over a SHA-256 digest.
const AlgorithmRSASHA256 = "rsa-pkcs1v15-sha256"

// RSASigner holds a recovered RSA private key in process memory. It exists
// only for the span of one signing operation.
type RSASigner struct {
	privateKey *rsa.PrivateKey
}

// NewRSASigner wraps an already parsed private key.
func NewRSASigner(key *rsa.PrivateKey) (*RSASigner, error) {
	if key == nil {
		return nil, &SignerError{Op: "rsa", Msg: "private key is nil"}
	}
	if err := key.Validate(); err != nil {
		return nil, &SignerError{Op: "rsa", Msg: "private key failed validation", Err: err}
	}
	return &RSASigner{privateKey: key}, nil
}

// NewRSASignerFromPEM parses a PKCS#1 or PKCS#8 PEM private key.
func NewRSASignerFromPEM(pemBytes []byte) (*RSASigner, error) {
	key, err := ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	return NewRSASigner(key)
}

// Sign hashes data with SHA-256 and signs the digest with PKCS#1 v1.5.
// The output is deterministic for a given key and document.
func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(nil, s.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, &SignerError{Op: "rsa", Msg: "signing failed", Err: err}
	}
	return sig, nil
}

// PublicKey returns the SubjectPublicKeyInfo PEM of the signing key.
func (s *RSASigner) PublicKey() ([]byte, error) {
	return MarshalPublicKeyPEM(&s.privateKey.PublicKey)
}

// Algorithm returns AlgorithmRSASHA256.
func (s *RSASigner) Algorithm() string {
	return AlgorithmRSASHA256
}

// Destroy drops the reference to the private key. Big integers cannot be
// reliably zeroed, so this is best effort.
func (s *RSASigner) Destroy() {
	s.privateKey = nil
}
