// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package keywrap

import "io"

// SetRandReaderForTesting sets the IV source used by Wrap.
// Returns a function restoring the original reader.
func SetRandReaderForTesting(r io.Reader) func() {
	original := randReader
	randReader = r
	return func() { randReader = original }
}
