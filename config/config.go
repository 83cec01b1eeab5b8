// Fabstir LLM Session - end-to-end encrypted inference session transport
// Copyright (C) 2026 Fabstir
//
// This file is part of the Fabstir LLM session library.
//
// This library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this library. If not, see <https://www.gnu.org/licenses/>.

// Package config loads the client configuration from YAML with
// ${VAR:default} environment substitution and optional .env files.
package config

import (
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// Duration is a time.Duration that decodes from YAML strings like "30s"
// or from plain nanosecond integers.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "invalid duration", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "invalid duration", err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level client configuration.
type Config struct {
	Host    HostConfig    `yaml:"host"`
	Chain   ChainConfig   `yaml:"chain"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// HostConfig locates the compute host.
type HostConfig struct {
	// Endpoint is the host's WebSocket URL (ws:// or wss://).
	Endpoint string `yaml:"endpoint"`
	// PublicKey is the host's static compressed public key, hex.
	PublicKey string `yaml:"public_key"`
	// Address is the host's on-chain address, for bookkeeping.
	Address string `yaml:"address,omitempty"`
}

// ChainConfig scopes identities and seeds to a chain.
type ChainConfig struct {
	ChainID uint64 `yaml:"chain_id"`
	RPC     string `yaml:"rpc,omitempty"`
}

// SessionConfig tunes protocol timeouts.
type SessionConfig struct {
	OperationTimeout  Duration `yaml:"operation_timeout"`
	InactivityTimeout Duration `yaml:"inactivity_timeout"`
}

// StoreConfig tunes the encrypted store retry policy.
type StoreConfig struct {
	Root           string   `yaml:"root"`
	MaxAttempts    int      `yaml:"max_attempts"`
	BaseDelay      Duration `yaml:"base_delay"`
	WaitForNetwork bool     `yaml:"wait_for_network"`
	PostgresDSN    string   `yaml:"postgres_dsn,omitempty"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration defaults applied before loading.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			OperationTimeout:  Duration(30 * time.Second),
			InactivityTimeout: Duration(60 * time.Second),
		},
		Store: StoreConfig{
			Root:           "conversations",
			MaxAttempts:    3,
			BaseDelay:      Duration(time.Second),
			WaitForNetwork: true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func substituteEnvVars(input []byte) []byte {
	return envVarPattern.ReplaceAllFunc(input, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(string(parts[1])); value != "" {
			return []byte(value)
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return nil
	})
}

// Load reads a YAML config file, substituting environment variables. A
// .env file next to the process, when present, is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-provided
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotFound, "config file unreadable", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(substituteEnvVars(data), cfg); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "config parse failed", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Host.Endpoint == "" {
		return errors.New(errors.CodeInvalidInput, "host.endpoint is required")
	}
	if c.Host.PublicKey == "" {
		return errors.New(errors.CodeInvalidInput, "host.public_key is required")
	}
	if c.Chain.ChainID == 0 {
		return errors.New(errors.CodeInvalidInput, "chain.chain_id is required")
	}
	if c.Store.MaxAttempts < 1 {
		return errors.New(errors.CodeInvalidInput, "store.max_attempts must be at least 1")
	}
	return nil
}
