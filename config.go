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

package barangay

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/barangay/api"
	"github.com/blinklabs-io/barangay/event"
	"github.com/blinklabs-io/barangay/roles"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RoleOracleDatabase = "database"
	RoleOracleSpiffe   = "spiffe"
)

type Config struct {
	promRegistry        prometheus.Registerer
	logger              *slog.Logger
	roleOracle          roles.Oracle
	tracingWriter       io.Writer
	clock               func() time.Time
	dataDir             string
	metadataBackend     string
	metadataDsn         string
	listenAddress       string
	tlsCertFilePath     string
	tlsKeyFilePath      string
	tlsClientCaFilePath string
	principalSource     api.PrincipalSource
	roleOracleName      string
	trustDomain         string
	natsUrl             string
	natsSubjectPrefix   string
	relayInterval       time.Duration
	shutdownTimeout     time.Duration
	tracing             bool
	tracingStdout       bool
}

func (n *Node) configValidate() error {
	if !n.config.principalSource.Valid() {
		return errors.New("unknown principal source: " + string(n.config.principalSource))
	}
	if n.config.roleOracle == nil {
		switch n.config.roleOracleName {
		case RoleOracleDatabase:
		case RoleOracleSpiffe:
			if n.config.trustDomain == "" {
				return errors.New("spiffe role oracle requires a trust domain")
			}
		default:
			return errors.New("unknown role oracle: " + n.config.roleOracleName)
		}
	}
	if n.config.principalSource == api.PrincipalSourceSpiffe {
		if n.config.trustDomain == "" {
			return errors.New("spiffe principal source requires a trust domain")
		}
		if n.config.tlsCertFilePath == "" || n.config.tlsKeyFilePath == "" ||
			n.config.tlsClientCaFilePath == "" {
			return errors.New(
				"spiffe principal source requires a TLS certificate, key and client CA bundle",
			)
		}
	}
	if (n.config.tlsCertFilePath == "") != (n.config.tlsKeyFilePath == "") {
		return errors.New("TLS certificate and key must be provided together")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new barangay config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		listenAddress:     ":8080",
		principalSource:   api.PrincipalSourceHeader,
		roleOracleName:    RoleOracleDatabase,
		natsSubjectPrefix: event.DefaultNatsSubjectPrefix,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataBackend selects the metadata database engine (sqlite, postgres or mysql)
func WithMetadataBackend(backend string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataBackend = backend
	}
}

// WithMetadataDsn specifies the connection string for the postgres and mysql backends
func WithMetadataDsn(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataDsn = dsn
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithListenAddress specifies the address for the REST API listener. The default is ":8080"
func WithListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.listenAddress = addr
	}
}

// WithTLS enables TLS on the API listener. The client CA bundle is optional unless SPIFFE principals are used
func WithTLS(certFilePath, keyFilePath, clientCaFilePath string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsCertFilePath = certFilePath
		c.tlsKeyFilePath = keyFilePath
		c.tlsClientCaFilePath = clientCaFilePath
	}
}

// WithPrincipalSource specifies where the API reads the caller identity from
func WithPrincipalSource(source api.PrincipalSource) ConfigOptionFunc {
	return func(c *Config) {
		c.principalSource = source
	}
}

// WithRoleOracle selects the built-in role oracle by name (database or spiffe)
func WithRoleOracle(name string) ConfigOptionFunc {
	return func(c *Config) {
		c.roleOracleName = name
	}
}

// WithCustomRoleOracle replaces the built-in role oracle
func WithCustomRoleOracle(oracle roles.Oracle) ConfigOptionFunc {
	return func(c *Config) {
		c.roleOracle = oracle
	}
}

// WithTrustDomain specifies the SPIFFE trust domain for the spiffe role oracle and principal source
func WithTrustDomain(trustDomain string) ConfigOptionFunc {
	return func(c *Config) {
		c.trustDomain = trustDomain
	}
}

// WithNats enables forwarding of domain events to a NATS server. An empty subject prefix uses the default
func WithNats(url string, subjectPrefix string) ConfigOptionFunc {
	return func(c *Config) {
		c.natsUrl = url
		if subjectPrefix != "" {
			c.natsSubjectPrefix = subjectPrefix
		}
	}
}

// WithRelayInterval specifies how often the outbox is polled when no change notification arrives
func WithRelayInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.relayInterval = interval
	}
}

// WithClock overrides the time source used for deadlines and timestamps
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
