// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrInvalidPin        = errors.New("invalid PIN")
	ErrKeyRecoveryFailed = errors.New("private key recovery failed")
	ErrKeyFileNotFound   = errors.New("key file not found")
	ErrKeyFileCorrupt    = errors.New("key file corrupt")
	ErrTokenNotFound     = errors.New("token not found")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrIOFailure         = errors.New("I/O failure")

	ErrConfig            = errors.New("configuration error")
	ErrValidation        = errors.New("validation error")
	ErrNoDocument        = errors.New("no document selected")
	ErrCancelled         = errors.New("operation cancelled")
	ErrUnsupportedFormat = errors.New("unsupported key file format")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}

// Wrap functions for consistent error wrapping

func WrapInvalidPin(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidPin, reason)
}

func WrapKeyFileNotFound(path string) error {
	return fmt.Errorf("%w: %s", ErrKeyFileNotFound, path)
}

func WrapKeyFileCorrupt(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrKeyFileCorrupt, path, reason)
}

func WrapUnsupportedFormat(path string, version byte) error {
	return fmt.Errorf("%w: %s: version %d", ErrUnsupportedFormat, path, version)
}

func WrapTokenNotFound(reason string) error {
	return fmt.Errorf("%w: %s", ErrTokenNotFound, reason)
}

func WrapIOFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}

func WrapConfigError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrConfig, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConfig, msg, err)
}

func WrapValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func WrapCancelled(op string) error {
	return fmt.Errorf("%w: %s", ErrCancelled, op)
}

func WrapNoDocument(reason string) error {
	return fmt.Errorf("%w: %s", ErrNoDocument, reason)
}
