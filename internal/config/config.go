// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package config loads and validates Keyward configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then command-line flags. Later layers win.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyward/keyward/internal/credential"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (postgres://...).
	URL string `koanf:"url" json:"url" jsonschema:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Format is "json" or "text".
	Format string `koanf:"format" json:"format" jsonschema:"enum=json,enum=text"`
	// Level is debug, info, warn or error.
	Level string `koanf:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ObservabilityConfig holds metrics and health probe settings.
type ObservabilityConfig struct {
	// Enabled turns the metrics/health HTTP listener on.
	Enabled bool `koanf:"enabled" json:"enabled"`
	// Addr is the listen address, e.g. "127.0.0.1:9100".
	Addr string `koanf:"addr" json:"addr"`
}

// CredentialConfig holds hashing and passcode settings.
type CredentialConfig struct {
	// BcryptCost is the bcrypt work factor for new password hashes.
	BcryptCost int `koanf:"bcrypt_cost" json:"bcrypt_cost" jsonschema:"minimum=4,maximum=31"`
	// PasscodeLength is the length of generated passcodes.
	PasscodeLength int `koanf:"passcode_length" json:"passcode_length" jsonschema:"minimum=8"`
}

// Config is the root Keyward configuration.
type Config struct {
	Database      DatabaseConfig      `koanf:"database" json:"database" jsonschema:"required"`
	Log           LogConfig           `koanf:"log" json:"log"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability"`
	Credential    CredentialConfig    `koanf:"credential" json:"credential"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			URL: "postgres://localhost:5432/keyward",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Observability: ObservabilityConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9100",
		},
		Credential: CredentialConfig{
			BcryptCost:     credential.DefaultBcryptCost,
			PasscodeLength: credential.DefaultPasscodeLength,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file at
// path, and flag overrides. A missing file is only an error when the path
// was set explicitly (explicitPath).
func Load(path string, explicitPath bool, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, oops.In("config").
			Code("CONFIG_DEFAULTS_FAILED").
			Wrap(err)
	}

	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
			if verr := validateFile(path); verr != nil {
				return nil, verr
			}
		case os.IsNotExist(err) && !explicitPath:
			// Default path absent is fine.
		default:
			return nil, oops.In("config").
				Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.In("config").
				Code("CONFIG_FLAGS_FAILED").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").
			Code("CONFIG_UNMARSHAL_FAILED").
			Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.In("config").
			Code("CONFIG_INVALID").
			Errorf("database.url must not be empty")
	}
	if c.Credential.BcryptCost < bcrypt.MinCost || c.Credential.BcryptCost > bcrypt.MaxCost {
		return oops.In("config").
			Code("CONFIG_INVALID").
			With("bcrypt_cost", c.Credential.BcryptCost).
			Errorf("credential.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Credential.PasscodeLength < credential.MinPasscodeLength {
		return oops.In("config").
			Code("CONFIG_INVALID").
			With("passcode_length", c.Credential.PasscodeLength).
			Errorf("credential.passcode_length must be at least %d", credential.MinPasscodeLength)
	}
	if c.Observability.Enabled && c.Observability.Addr == "" {
		return oops.In("config").
			Code("CONFIG_INVALID").
			Errorf("observability.addr must be set when observability is enabled")
	}
	return nil
}

// validateFile runs JSON Schema validation on the config file contents.
func validateFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config flag
	if err != nil {
		return oops.In("config").
			Code("CONFIG_FILE_FAILED").
			With("path", path).
			Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return oops.In("config").
			Code("CONFIG_SCHEMA_INVALID").
			With("path", path).
			Wrap(err)
	}
	return nil
}
