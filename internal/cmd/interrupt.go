// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	stderrors "errors"

	"github.com/dotandev/padesign/internal/errors"
)

const InterruptExitCode = 130

var ErrInterrupted = stderrors.New("interrupt received")

func IsInterrupted(err error) bool {
	return stderrors.Is(err, ErrInterrupted)
}

// IsCancellation reports whether err came from a cancelled context or a
// prompt the user dismissed.
func IsCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || errors.Is(err, errors.ErrCancelled)
}
