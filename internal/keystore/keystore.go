// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

// Package keystore reads and writes the key artifacts kept on a token and
// next to signed documents. It moves bytes and nothing else: the wrapped
// record is laid out as an optional version byte, the IV, then the
// ciphertext, and the public key is stored as raw PEM.
//
// Two layouts of the wrapped record exist:
//
//	legacy: IV(16) || ciphertext          len % 16 == 0
//	v1:     0x01 || IV(16) || ciphertext  len % 16 == 1
//
// Because CBC ciphertext is always a whole number of blocks the layouts can
// be told apart by length alone.
package keystore

import (
	"crypto/aes"
	"io/fs"
	"os"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/keywrap"
	"github.com/facebookgo/atomicfile"
)

const (
	// DefaultWrappedKeyName is the file the generator writes to the token.
	DefaultWrappedKeyName = "encryptedPrivateKey.key"
	// DefaultPublicKeyName is the file the generator writes beside it.
	DefaultPublicKeyName = "public.key"

	privateFileMode fs.FileMode = 0o600
	publicFileMode  fs.FileMode = 0o644
)

// Encode returns the on-disk bytes of rec in the layout named by rec.Version.
func Encode(rec *keywrap.Record) ([]byte, error) {
	if rec == nil || len(rec.IV) != keywrap.IVSize {
		return nil, errors.WrapValidationError("wrapped record must carry a 16-byte IV")
	}
	if len(rec.Ciphertext) == 0 || len(rec.Ciphertext)%aes.BlockSize != 0 {
		return nil, errors.WrapValidationError("wrapped record ciphertext must be whole AES blocks")
	}

	var out []byte
	switch rec.Version {
	case keywrap.FormatLegacy:
		out = make([]byte, 0, keywrap.IVSize+len(rec.Ciphertext))
	case keywrap.FormatV1:
		out = make([]byte, 0, 1+keywrap.IVSize+len(rec.Ciphertext))
		out = append(out, keywrap.FormatV1)
	default:
		return nil, errors.WrapUnsupportedFormat("record", rec.Version)
	}
	out = append(out, rec.IV...)
	out = append(out, rec.Ciphertext...)
	return out, nil
}

// Decode parses on-disk bytes. name is used only in error messages.
func Decode(name string, raw []byte) (*keywrap.Record, error) {
	var version byte
	body := raw

	switch len(raw) % aes.BlockSize {
	case 0:
		version = keywrap.FormatLegacy
	case 1:
		version = raw[0]
		if version != keywrap.FormatV1 {
			return nil, errors.WrapUnsupportedFormat(name, version)
		}
		body = raw[1:]
	default:
		return nil, errors.WrapKeyFileCorrupt(name, "length is not a whole number of blocks")
	}

	if len(body) < keywrap.IVSize {
		return nil, errors.WrapKeyFileCorrupt(name, "too short to contain an IV")
	}
	if len(body) == keywrap.IVSize {
		return nil, errors.WrapKeyFileCorrupt(name, "no ciphertext after IV")
	}

	iv := make([]byte, keywrap.IVSize)
	copy(iv, body[:keywrap.IVSize])
	ct := make([]byte, len(body)-keywrap.IVSize)
	copy(ct, body[keywrap.IVSize:])

	return &keywrap.Record{Version: version, IV: iv, Ciphertext: ct}, nil
}

// ReadWrapped loads a wrapped private key record.
func ReadWrapped(path string) (*keywrap.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.WrapKeyFileNotFound(path)
		}
		return nil, errors.WrapIOFailure("read wrapped key", err)
	}
	return Decode(path, raw)
}

// WriteWrapped persists rec atomically with owner-only permissions.
func WriteWrapped(path string, rec *keywrap.Record) error {
	raw, err := Encode(rec)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, raw, privateFileMode)
}

// ReadPublic returns the PEM bytes of a public key file unchanged.
func ReadPublic(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.WrapKeyFileNotFound(path)
		}
		return nil, errors.WrapIOFailure("read public key", err)
	}
	return raw, nil
}

// WritePublic writes PEM bytes unchanged.
func WritePublic(path string, pemBytes []byte) error {
	if len(pemBytes) == 0 {
		return errors.WrapValidationError("public key is empty")
	}
	return WriteFileAtomic(path, pemBytes, publicFileMode)
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers see either the old content or all of data.
func WriteFileAtomic(path string, data []byte, mode fs.FileMode) error {
	f, err := atomicfile.New(path, mode)
	if err != nil {
		return errors.WrapIOFailure("create "+path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return errors.WrapIOFailure("write "+path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Abort()
		return errors.WrapIOFailure("sync "+path, err)
	}
	if err := f.Close(); err != nil {
		return errors.WrapIOFailure("commit "+path, err)
	}
	return nil
}
