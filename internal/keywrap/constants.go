// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package keywrap

import "crypto/aes"

const (
	// KeySize is the size of the AES-256 wrapping key in bytes.
	KeySize = 32
	// IVSize is the size of the AES-CBC initialization vector in bytes.
	IVSize = aes.BlockSize

	// maxPadBlock is the largest PKCS#7 block accepted when unpadding.
	// Some older generators padded to a 32-byte block.
	maxPadBlock = 32
)

// Record format versions. FormatLegacy has no version byte on disk.
const (
	FormatLegacy byte = 0
	FormatV1     byte = 1
)
