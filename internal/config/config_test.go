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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points the home directory at an empty temp dir so a developer's
// own ~/.barangay/barangay.yaml cannot leak into the test
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"BARANGAY_DATABASE_PATH",
		"BARANGAY_API_PORT",
		"BARANGAY_ROLE_ORACLE",
		"BARANGAY_TRUST_DOMAIN",
		"BARANGAY_NATS_URL",
		"NATS_URL",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "barangay.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o600))
	return tmpFile
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)
	if _, err := os.Stat("/etc/barangay/barangay.yaml"); err == nil {
		t.Skip("system config file present")
	}
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfigFlatFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
databasePath: "/var/lib/barangay"
apiPort: 9000
metricsPort: 9001
natsUrl: "nats://127.0.0.1:4222"
relayInterval: "250ms"
tracing: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	expected := Default()
	expected.DatabasePath = "/var/lib/barangay"
	expected.ApiPort = 9000
	expected.MetricsPort = 9001
	expected.NatsUrl = "nats://127.0.0.1:4222"
	expected.RelayInterval = "250ms"
	expected.Tracing = true
	assert.Equal(t, expected, cfg)
	interval, err := cfg.RelayIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, interval)
}

func TestLoadConfigSection(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
config:
  roleOracle: spiffe
  trustDomain: barangay.example
  shutdownTimeout: 5s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "spiffe", cfg.RoleOracle)
	assert.Equal(t, "barangay.example", cfg.TrustDomain)
	// Untouched values keep their defaults
	assert.Equal(t, uint(8080), cfg.ApiPort)
	timeout, err := cfg.ShutdownTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "apiPort: 9000\n")
	t.Setenv("BARANGAY_API_PORT", "9100")
	t.Setenv("BARANGAY_DATABASE_PATH", "/tmp/env-db")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint(9100), cfg.ApiPort)
	assert.Equal(t, "/tmp/env-db", cfg.DatabasePath)
}

func TestLoadConfigHomeDir(t *testing.T) {
	isolateEnv(t)
	home := os.Getenv("HOME")
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".barangay"), 0o700))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".barangay", "barangay.yaml"),
		[]byte("bindAddr: 127.0.0.1\n"),
		0o600,
	))
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
}

func TestLoadConfigErrors(t *testing.T) {
	isolateEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "error reading config file")

	_, err = LoadConfig(writeConfig(t, "apiPort: [\n"))
	require.ErrorContains(t, err, "error parsing config file")

	// A sops key without valid metadata cannot be decrypted
	_, err = LoadConfig(writeConfig(t, "data: abc\nsops:\n  version: bogus\n"))
	require.ErrorContains(t, err, "error decrypting config file")

	_, err = LoadConfig(writeConfig(t, "roleOracle: spiffe\n"))
	require.ErrorContains(t, err, "trustDomain is required")
}

func TestValidate(t *testing.T) {
	testDefs := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.MetadataBackend = "oracle" },
			errMsg: "invalid metadataBackend",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.MetadataBackend = "postgres" },
			errMsg: "metadataDsn is required",
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.MetadataBackend = "postgres"
				c.MetadataDsn = "host=localhost dbname=barangay"
			},
		},
		{
			name:   "unknown principal source",
			mutate: func(c *Config) { c.PrincipalSource = "cookie" },
			errMsg: "invalid principalSource",
		},
		{
			name:   "spiffe principal without tls",
			mutate: func(c *Config) { c.PrincipalSource = "spiffe" },
			errMsg: "principalSource spiffe requires",
		},
		{
			name:   "cert without key",
			mutate: func(c *Config) { c.TlsCertFilePath = "cert.pem" },
			errMsg: "must be set together",
		},
		{
			name:   "bad relay interval",
			mutate: func(c *Config) { c.RelayInterval = "soon" },
			errMsg: "invalid relayInterval",
		},
		{
			name:   "negative shutdown timeout",
			mutate: func(c *Config) { c.ShutdownTimeout = "-1s" },
			errMsg: "must be positive",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			cfg := Default()
			testDef.mutate(cfg)
			err := cfg.Validate()
			if testDef.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, testDef.errMsg)
		})
	}
}

func TestEmptyDurationsUseDefaults(t *testing.T) {
	cfg := &Config{}
	interval, err := cfg.RelayIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Second, interval)
	timeout, err := cfg.ShutdownTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

func TestEncryptRequiresMasterKey(t *testing.T) {
	t.Setenv("BARANGAY_GCP_KMS_RESOURCE_ID", "")
	t.Setenv("BARANGAY_AWS_KMS_KEY_ARNS", "")
	_, err := Encrypt([]byte("apiPort: 9000\n"))
	require.ErrorContains(t, err, "at least one master key")
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := Default()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
