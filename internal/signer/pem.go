// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
)

const (
	pemTypeRSAPrivate = "RSA PRIVATE KEY"
	pemTypePrivate    = "PRIVATE KEY"
	pemTypePublic     = "PUBLIC KEY"
	pemTypeRSAPublic  = "RSA PUBLIC KEY"
)

// ParsePrivateKeyPEM decodes the first PEM block and parses a PKCS#1
// ("RSA PRIVATE KEY") or PKCS#8 ("PRIVATE KEY") RSA private key. Trailing
// bytes after the block are ignored.
func ParsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, &SignerError{Op: "pem", Msg: "no PEM block found"}
	}

	switch block.Type {
	case pemTypeRSAPrivate:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, &SignerError{Op: "pem", Msg: "invalid PKCS#1 private key", Err: err}
		}
		return key, nil
	case pemTypePrivate:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, &SignerError{Op: "pem", Msg: "invalid PKCS#8 private key", Err: err}
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, &SignerError{Op: "pem", Msg: "private key is not RSA"}
		}
		return key, nil
	default:
		return nil, &SignerError{Op: "pem", Msg: "unexpected PEM block type " + block.Type}
	}
}

// ParsePublicKeyPEM parses a SubjectPublicKeyInfo ("PUBLIC KEY") or PKCS#1
// ("RSA PUBLIC KEY") RSA public key.
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, &SignerError{Op: "pem", Msg: "no PEM block found"}
	}

	switch block.Type {
	case pemTypePublic:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, &SignerError{Op: "pem", Msg: "invalid SubjectPublicKeyInfo", Err: err}
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, &SignerError{Op: "pem", Msg: "public key is not RSA"}
		}
		return key, nil
	case pemTypeRSAPublic:
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, &SignerError{Op: "pem", Msg: "invalid PKCS#1 public key", Err: err}
		}
		return key, nil
	default:
		return nil, &SignerError{Op: "pem", Msg: "unexpected PEM block type " + block.Type}
	}
}

// MarshalPrivateKeyPEM encodes key as an unencrypted PKCS#1 PEM block, the
// TraditionalOpenSSL layout.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeRSAPrivate,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// MarshalPublicKeyPEM encodes key as a SubjectPublicKeyInfo PEM block.
func MarshalPublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, &SignerError{Op: "pem", Msg: "failed to marshal public key", Err: err}
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der}), nil
}
