// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dotandev/padesign/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config is the general configuration for padesign.
type Config struct {
	LogLevel string `yaml:"log_level,omitempty"`
	LogJSON  bool   `yaml:"log_json,omitempty"`

	KeyFileName       string `yaml:"key_file_name,omitempty"`
	PublicKeyFileName string `yaml:"public_key_file_name,omitempty"`
	SignatureSuffix   string `yaml:"signature_suffix,omitempty"`
	// LegacyKeyFormat makes keygen write IV||ciphertext without the version
	// byte, for tokens that older readers must still open.
	LegacyKeyFormat bool `yaml:"legacy_key_format,omitempty"`
	KeyBits         int  `yaml:"key_bits,omitempty"`

	JournalPath          string `yaml:"journal_path,omitempty"`
	PinAttemptsPerMinute int    `yaml:"pin_attempts_per_minute,omitempty"`
	// RequiredVersion is a version constraint such as ">= 1.2" that the
	// running binary must satisfy.
	RequiredVersion string `yaml:"required_version,omitempty"`
	// MetricsTextfile, when set, receives a Prometheus text snapshot of each
	// command's counters, for a node exporter textfile collector.
	MetricsTextfile string `yaml:"metrics_textfile,omitempty"`

	Token   TokenConfig   `yaml:"token,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Daemon  DaemonConfig  `yaml:"daemon,omitempty"`
	Crash   CrashConfig   `yaml:"crash,omitempty"`

	// UpdateURL is the release feed queried by "version --check".
	UpdateURL string `yaml:"update_url,omitempty"`
}

type TokenConfig struct {
	// MountRoots are always treated as removable mounts.
	MountRoots []string `yaml:"mount_roots,omitempty"`
	// WatchRoots are directories the OS mounts devices under.
	WatchRoots   []string      `yaml:"watch_roots,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	MaxDepth     int           `yaml:"max_depth,omitempty"`
}

type TracingConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	OTLPURL string `yaml:"otlp_url,omitempty"`
}

// CrashConfig controls opt-in panic reporting. Nothing is sent unless
// Enabled is set and a sink is configured.
type CrashConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	SentryDSN string `yaml:"sentry_dsn,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
}

type DaemonConfig struct {
	Addr      string `yaml:"addr,omitempty"`
	AuthToken string `yaml:"auth_token,omitempty"`
}

var defaultConfig = &Config{
	LogLevel:             "warn",
	KeyFileName:          "encryptedPrivateKey.key",
	PublicKeyFileName:    "public.key",
	SignatureSuffix:      ".sig",
	KeyBits:              4096,
	PinAttemptsPerMinute: 5,
	Token: TokenConfig{
		WatchRoots:   []string{"/media", "/run/media", "/mnt", "/Volumes"},
		PollInterval: 2 * time.Second,
		MaxDepth:     8,
	},
	Tracing: TracingConfig{
		OTLPURL: "http://localhost:4318",
	},
	Daemon: DaemonConfig{
		Addr: "127.0.0.1:8765",
	},
	UpdateURL: "https://api.github.com/repos/dotandev/padesign/releases/latest",
}

// DefaultConfig returns a fresh copy of the built-in defaults.
func DefaultConfig() *Config {
	cfg := *defaultConfig
	cfg.Token.WatchRoots = append([]string(nil), defaultConfig.Token.WatchRoots...)
	if dir, err := GetConfigPath(); err == nil {
		cfg.JournalPath = filepath.Join(dir, "journal.db")
	}
	return &cfg
}

// Load builds the configuration from defaults, the first config file found
// and PADES_* environment variables, then validates it.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a single YAML file over the defaults. Environment
// variables are not consulted.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile() error {
	if explicit := os.Getenv("PADES_CONFIG"); explicit != "" {
		return c.loadYAML(explicit)
	}

	paths := []string{".padesign.yaml"}
	if dir, err := GetConfigPath(); err == nil {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return c.loadYAML(path)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapConfigError("failed to read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.WrapConfigError("failed to parse config file "+path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	setString("PADES_LOG_LEVEL", &c.LogLevel)
	setString("PADES_KEY_FILE_NAME", &c.KeyFileName)
	setString("PADES_PUBLIC_KEY_FILE_NAME", &c.PublicKeyFileName)
	setString("PADES_SIGNATURE_SUFFIX", &c.SignatureSuffix)
	setString("PADES_JOURNAL_PATH", &c.JournalPath)
	setString("PADES_METRICS_TEXTFILE", &c.MetricsTextfile)
	setString("PADES_REQUIRED_VERSION", &c.RequiredVersion)
	setString("PADES_OTLP_URL", &c.Tracing.OTLPURL)
	setString("PADES_DAEMON_ADDR", &c.Daemon.Addr)
	setString("PADES_DAEMON_AUTH_TOKEN", &c.Daemon.AuthToken)
	setString("PADES_SENTRY_DSN", &c.Crash.SentryDSN)
	setString("PADES_CRASH_ENDPOINT", &c.Crash.Endpoint)
	setString("PADES_UPDATE_URL", &c.UpdateURL)
	setList("PADES_TOKEN_MOUNT_ROOTS", &c.Token.MountRoots)
	setList("PADES_TOKEN_WATCH_ROOTS", &c.Token.WatchRoots)

	if v := os.Getenv("PADES_LOG_JSON"); v != "" {
		c.LogJSON = parseBool(v)
	}
	if v := os.Getenv("PADES_LEGACY_KEY_FORMAT"); v != "" {
		c.LegacyKeyFormat = parseBool(v)
	}
	if v := os.Getenv("PADES_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("PADES_CRASH_REPORTING"); v != "" {
		c.Crash.Enabled = parseBool(v)
	}

	for key, dst := range map[string]*int{
		"PADES_KEY_BITS":                &c.KeyBits,
		"PADES_PIN_ATTEMPTS_PER_MINUTE": &c.PinAttemptsPerMinute,
		"PADES_TOKEN_MAX_DEPTH":         &c.Token.MaxDepth,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapConfigError(key+" must be an integer", err)
		}
		*dst = n
	}

	if v := os.Getenv("PADES_TOKEN_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.WrapConfigError("PADES_TOKEN_POLL_INTERVAL must be a duration", err)
		}
		c.Token.PollInterval = d
	}
	return nil
}

// Validate runs the default validators.
func (c *Config) Validate() error {
	return RunValidators(c, DefaultValidators())
}

// SaveConfig writes cfg as YAML to path with owner-only permissions.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.WrapConfigError("failed to create config directory", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapConfigError("failed to marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapConfigError("failed to write config file", err)
	}
	return nil
}

// GetConfigPath returns the padesign configuration directory.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".padesign"), nil
}

// SignaturePath returns where the signature of document is stored.
func (c *Config) SignaturePath(document string) string {
	return document + c.SignatureSuffix
}

func (c *Config) String() string {
	auth := ""
	if c.Daemon.AuthToken != "" {
		auth = "set"
	}
	return fmt.Sprintf(
		"Config{LogLevel: %s, KeyFile: %s, KeyBits: %d, Legacy: %t, Journal: %s, DaemonAddr: %s, DaemonAuth: %q}",
		c.LogLevel, c.KeyFileName, c.KeyBits, c.LegacyKeyFormat, c.JournalPath, c.Daemon.Addr, auth,
	)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
