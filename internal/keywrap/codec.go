// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/signer"
)

// randReader is the IV source. Tests may replace it via SetRandReaderForTesting.
var randReader io.Reader = rand.Reader

// Record is a wrapped private key: the CBC IV and the padded ciphertext.
type Record struct {
	// Version is the on-disk layout the record was read from or will be
	// written as. FormatLegacy omits the version byte.
	Version    byte
	IV         []byte
	Ciphertext []byte
}

// Wrap pads plaintext with PKCS#7 and encrypts it with AES-256-CBC under key
// using a fresh random IV.
func Wrap(plaintext, key []byte) (*Record, error) {
	if len(key) != KeySize {
		return nil, errors.WrapValidationError(fmt.Sprintf("wrapping key must be %d bytes, got %d", KeySize, len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer zeroBytes(padded)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &Record{
		Version:    FormatV1,
		IV:         iv,
		Ciphertext: ciphertext,
	}, nil
}

// Unwrap decrypts the record, strips the padding and checks that the result
// is a PEM private key. Every failure, including a wrong key whose output
// happens to carry valid padding, is reported as ErrKeyRecoveryFailed with no
// further detail.
func Unwrap(rec *Record, key []byte) ([]byte, error) {
	plaintext, err := decrypt(rec, key)
	if err != nil {
		return nil, err
	}
	if !isPrivateKeyPEM(plaintext) {
		zeroBytes(plaintext)
		return nil, errors.ErrKeyRecoveryFailed
	}
	return plaintext, nil
}

func decrypt(rec *Record, key []byte) ([]byte, error) {
	if rec == nil || len(key) != KeySize || len(rec.IV) != IVSize {
		return nil, errors.ErrKeyRecoveryFailed
	}
	if len(rec.Ciphertext) == 0 || len(rec.Ciphertext)%aes.BlockSize != 0 {
		return nil, errors.ErrKeyRecoveryFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.ErrKeyRecoveryFailed
	}

	padded := make([]byte, len(rec.Ciphertext))
	cipher.NewCBCDecrypter(block, rec.IV).CryptBlocks(padded, rec.Ciphertext)

	n, ok := pkcs7PadLen(padded)
	if !ok {
		zeroBytes(padded)
		return nil, errors.ErrKeyRecoveryFailed
	}

	plaintext := make([]byte, len(padded)-n)
	copy(plaintext, padded)
	zeroBytes(padded)
	return plaintext, nil
}

func isPrivateKeyPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	if block == nil {
		return false
	}
	defer zeroBytes(block.Bytes)
	return strings.HasSuffix(block.Type, "PRIVATE KEY") && len(block.Bytes) > 0
}

// WrapPrivateKey wraps PEM-encoded private key bytes under the key derived
// from pin.
func WrapPrivateKey(pemBytes []byte, pin PIN) (*Record, error) {
	key, err := DeriveKey(pin)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)
	return Wrap(pemBytes, key)
}

// RecoverPrivateKey derives the wrapping key from pin, unwraps the record and
// parses the RSA private key. A wrong PIN, corrupt ciphertext and malformed
// PEM are indistinguishable to the caller. The PIN is wiped before return.
func RecoverPrivateKey(rec *Record, pin *PIN) (*rsa.PrivateKey, error) {
	if pin == nil {
		return nil, errors.WrapInvalidPin("PIN is empty")
	}
	defer pin.Wipe()

	key, err := DeriveKey(*pin)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	pemBytes, err := Unwrap(rec, key)
	if err != nil {
		return nil, errors.ErrKeyRecoveryFailed
	}
	defer zeroBytes(pemBytes)

	priv, err := signer.ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, errors.ErrKeyRecoveryFailed
	}
	return priv, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// pkcs7PadLen validates PKCS#7 padding for any block size up to maxPadBlock
// and returns the pad length. The pad bytes are compared in constant time.
func pkcs7PadLen(data []byte) (int, bool) {
	if len(data) == 0 {
		return 0, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > maxPadBlock || n > len(data) {
		return 0, false
	}
	good := 1
	for _, b := range data[len(data)-n:] {
		good &= subtle.ConstantTimeByteEq(b, byte(n))
	}
	return n, good == 1
}
