// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

const (
	// DefaultKeyBits is the key size keygen uses unless configured otherwise.
	DefaultKeyBits = 4096
	// MinKeyBits is the smallest modulus keygen accepts.
	MinKeyBits = 2048
)

// Keypair is a freshly generated keypair in its PEM encodings.
type Keypair struct {
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

// Wipe zeroes the private PEM buffer.
func (k *Keypair) Wipe() {
	for i := range k.PrivateKeyPEM {
		k.PrivateKeyPEM[i] = 0
	}
	k.PrivateKeyPEM = nil
}

// GenerateKeypair creates an RSA keypair with public exponent 65537.
func GenerateKeypair(bits int) (*Keypair, error) {
	if bits < MinKeyBits {
		return nil, &SignerError{Op: "keygen", Msg: fmt.Sprintf("key size %d is below the %d-bit minimum", bits, MinKeyBits)}
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, &SignerError{Op: "keygen", Msg: "key generation failed", Err: err}
	}

	pub, err := MarshalPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Keypair{
		PrivateKeyPEM: MarshalPrivateKeyPEM(priv),
		PublicKeyPEM:  pub,
	}, nil
}
