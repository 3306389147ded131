// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "barangay.config"

const (
	DefaultShutdownTimeout   = "30s"
	DefaultRelayInterval     = "1s"
	DefaultMetadataBackend   = "sqlite"
	DefaultPrincipalSource   = "header"
	DefaultRoleOracle        = "database"
	DefaultNatsSubjectPrefix = "barangay.events"
)

var (
	metadataBackends = []string{"sqlite", "postgres", "mysql"}
	principalSources = []string{"header", "spiffe"}
	roleOracles      = []string{"database", "spiffe"}
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config *Config `yaml:"config,omitempty"`
	Sops   any     `yaml:"sops,omitempty"`
}

type Config struct {
	DatabasePath        string `yaml:"databasePath"        split_words:"true"`
	MetadataBackend     string `yaml:"metadataBackend"     split_words:"true"`
	MetadataDsn         string `yaml:"metadataDsn"         split_words:"true"`
	BindAddr            string `yaml:"bindAddr"            split_words:"true"`
	TlsCertFilePath     string `yaml:"tlsCertFilePath"     envconfig:"TLS_CERT_FILE_PATH"`
	TlsKeyFilePath      string `yaml:"tlsKeyFilePath"      envconfig:"TLS_KEY_FILE_PATH"`
	TlsClientCaFilePath string `yaml:"tlsClientCaFilePath" envconfig:"TLS_CLIENT_CA_FILE_PATH"`
	PrincipalSource     string `yaml:"principalSource"     split_words:"true"`
	RoleOracle          string `yaml:"roleOracle"          split_words:"true"`
	TrustDomain         string `yaml:"trustDomain"         split_words:"true"`
	NatsUrl             string `yaml:"natsUrl"             envconfig:"NATS_URL"`
	NatsSubjectPrefix   string `yaml:"natsSubjectPrefix"   split_words:"true"`
	RelayInterval       string `yaml:"relayInterval"       split_words:"true"`
	ShutdownTimeout     string `yaml:"shutdownTimeout"     split_words:"true"`
	ApiPort             uint   `yaml:"apiPort"             split_words:"true"`
	MetricsPort         uint   `yaml:"metricsPort"         split_words:"true"`
	Tracing             bool   `yaml:"tracing"`
	TracingStdout       bool   `yaml:"tracingStdout"       split_words:"true"`
}

// Default returns a config populated with the default values
func Default() *Config {
	return &Config{
		DatabasePath:      ".barangay",
		MetadataBackend:   DefaultMetadataBackend,
		BindAddr:          "0.0.0.0",
		ApiPort:           8080,
		MetricsPort:       12799,
		PrincipalSource:   DefaultPrincipalSource,
		RoleOracle:        DefaultRoleOracle,
		NatsSubjectPrefix: DefaultNatsSubjectPrefix,
		RelayInterval:     DefaultRelayInterval,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

var globalConfig = Default()

// LoadConfig builds the config from defaults, the config file and the
// environment, in that order. With no explicit path the file is looked up
// in ~/.barangay/barangay.yaml and then /etc/barangay/barangay.yaml
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()
	if configFile == "" {
		// Check for config file in this path: ~/.barangay/barangay.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".barangay", "barangay.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/barangay/barangay.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/barangay/barangay.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := cfg.parse(buf); err != nil {
			return nil, err
		}
	}

	// Process environment variables
	if err := envconfig.Process("barangay", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

func (c *Config) parse(buf []byte) error {
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	// SOPS encrypted documents carry a top-level sops key
	if tempCfg.Sops != nil {
		plain, err := Decrypt(buf)
		if err != nil {
			return fmt.Errorf("error decrypting config file: %w", err)
		}
		buf = plain
		tempCfg = tempConfig{}
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return fmt.Errorf("error parsing decrypted config file: %w", err)
		}
	}
	if tempCfg.Config != nil {
		// Overlay config section values onto existing defaults
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		if err := yaml.Unmarshal(configBytes, c); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

// Validate checks enumerated values, durations and settings that depend on
// each other
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(metadataBackends, c.MetadataBackend) {
		errs = append(
			errs,
			fmt.Errorf("invalid metadataBackend: %q (must be one of %v)", c.MetadataBackend, metadataBackends),
		)
	}
	if c.MetadataBackend != DefaultMetadataBackend && c.MetadataDsn == "" {
		errs = append(errs, fmt.Errorf("metadataDsn is required for the %s backend", c.MetadataBackend))
	}
	if !slices.Contains(principalSources, c.PrincipalSource) {
		errs = append(
			errs,
			fmt.Errorf("invalid principalSource: %q (must be one of %v)", c.PrincipalSource, principalSources),
		)
	}
	if !slices.Contains(roleOracles, c.RoleOracle) {
		errs = append(
			errs,
			fmt.Errorf("invalid roleOracle: %q (must be one of %v)", c.RoleOracle, roleOracles),
		)
	}
	if c.TrustDomain == "" && (c.RoleOracle == "spiffe" || c.PrincipalSource == "spiffe") {
		errs = append(errs, errors.New("trustDomain is required when roleOracle or principalSource is spiffe"))
	}
	if c.PrincipalSource == "spiffe" {
		if c.TlsCertFilePath == "" || c.TlsKeyFilePath == "" || c.TlsClientCaFilePath == "" {
			errs = append(
				errs,
				errors.New("principalSource spiffe requires tlsCertFilePath, tlsKeyFilePath and tlsClientCaFilePath"),
			)
		}
	}
	if (c.TlsCertFilePath == "") != (c.TlsKeyFilePath == "") {
		errs = append(errs, errors.New("tlsCertFilePath and tlsKeyFilePath must be set together"))
	}
	if _, err := c.RelayIntervalDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RelayIntervalDuration returns the parsed outbox relay poll interval
func (c *Config) RelayIntervalDuration() (time.Duration, error) {
	return parsePositiveDuration("relayInterval", c.RelayInterval, DefaultRelayInterval)
}

// ShutdownTimeoutDuration returns the parsed graceful shutdown timeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	return parsePositiveDuration("shutdownTimeout", c.ShutdownTimeout, DefaultShutdownTimeout)
}

func parsePositiveDuration(name, value, def string) (time.Duration, error) {
	if value == "" {
		value = def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	return d, nil
}

func GetConfig() *Config {
	return globalConfig
}
