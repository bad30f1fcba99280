// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/hashicorp/go-version"
)

// Validator validates a specific aspect of the configuration.
type Validator interface {
	Validate(cfg *Config) error
}

// LogLevelValidator checks that the log level is a known value.
type LogLevelValidator struct{}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func (v LogLevelValidator) Validate(cfg *Config) error {
	if cfg.LogLevel == "" {
		return nil
	}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return errors.WrapValidationError("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// KeyValidator checks key generation and file naming settings.
type KeyValidator struct{}

const minKeyBits = 2048

func (v KeyValidator) Validate(cfg *Config) error {
	if cfg.KeyBits < minKeyBits {
		return errors.WrapValidationError("key_bits must be at least " + strconv.Itoa(minKeyBits))
	}
	for name, val := range map[string]string{
		"key_file_name":        cfg.KeyFileName,
		"public_key_file_name": cfg.PublicKeyFileName,
	} {
		if val == "" {
			return errors.WrapValidationError(name + " cannot be empty")
		}
		if strings.ContainsAny(val, `/\`) {
			return errors.WrapValidationError(name + " must be a bare file name")
		}
	}
	if cfg.SignatureSuffix == "" {
		return errors.WrapValidationError("signature_suffix cannot be empty")
	}
	if cfg.PinAttemptsPerMinute < 1 {
		return errors.WrapValidationError("pin_attempts_per_minute must be positive")
	}
	return nil
}

// TokenValidator checks discovery settings.
type TokenValidator struct{}

func (v TokenValidator) Validate(cfg *Config) error {
	if cfg.Token.PollInterval <= 0 {
		return errors.WrapValidationError("token.poll_interval must be positive")
	}
	if cfg.Token.MaxDepth < 1 {
		return errors.WrapValidationError("token.max_depth must be at least 1")
	}
	return nil
}

// EndpointValidator checks network addresses used by tracing and the daemon.
type EndpointValidator struct{}

func (v EndpointValidator) Validate(cfg *Config) error {
	if cfg.Tracing.Enabled {
		if !isHTTPURL(cfg.Tracing.OTLPURL) {
			return errors.WrapValidationError("tracing.otlp_url must be an http or https URL")
		}
	}
	if cfg.Daemon.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Daemon.Addr); err != nil {
			return errors.WrapValidationError("daemon.addr must be host:port")
		}
	}
	if cfg.Crash.Enabled && cfg.Crash.Endpoint != "" && !isHTTPURL(cfg.Crash.Endpoint) {
		return errors.WrapValidationError("crash.endpoint must be an http or https URL")
	}
	if cfg.UpdateURL != "" && !isHTTPURL(cfg.UpdateURL) {
		return errors.WrapValidationError("update_url must be an http or https URL")
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// VersionValidator checks that required_version parses as a constraint.
// Matching against the running binary happens in CheckVersion.
type VersionValidator struct{}

func (v VersionValidator) Validate(cfg *Config) error {
	if cfg.RequiredVersion == "" {
		return nil
	}
	if _, err := version.NewConstraint(cfg.RequiredVersion); err != nil {
		return errors.WrapConfigError("required_version is not a valid constraint", err)
	}
	return nil
}

// CheckVersion reports an error when current does not satisfy
// required_version. Development builds are not checked.
func (c *Config) CheckVersion(current string) error {
	if c.RequiredVersion == "" || current == "" || current == "dev" {
		return nil
	}
	constraint, err := version.NewConstraint(c.RequiredVersion)
	if err != nil {
		return errors.WrapConfigError("required_version is not a valid constraint", err)
	}
	ver, err := version.NewVersion(current)
	if err != nil {
		return errors.WrapConfigError("cannot parse binary version "+current, err)
	}
	if !constraint.Check(ver) {
		return errors.WrapConfigError("padesign "+current+" does not satisfy required_version "+c.RequiredVersion, nil)
	}
	return nil
}

// DefaultValidators returns the standard set of validators.
func DefaultValidators() []Validator {
	return []Validator{
		LogLevelValidator{},
		KeyValidator{},
		TokenValidator{},
		EndpointValidator{},
		VersionValidator{},
	}
}

// RunValidators executes each validator against the config, returning the
// first error encountered.
func RunValidators(cfg *Config, validators []Validator) error {
	for _, v := range validators {
		if err := v.Validate(cfg); err != nil {
			return err
		}
	}
	return nil
}
