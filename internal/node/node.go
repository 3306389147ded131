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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/blinklabs-io/barangay"
	"github.com/blinklabs-io/barangay/api"
	"github.com/blinklabs-io/barangay/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NodeConfig converts the loaded config into node options
func NodeConfig(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) (barangay.Config, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return barangay.Config{}, err
	}
	relayInterval, err := cfg.RelayIntervalDuration()
	if err != nil {
		return barangay.Config{}, err
	}
	return barangay.NewConfig(
		barangay.WithLogger(logger),
		barangay.WithDatabasePath(cfg.DatabasePath),
		barangay.WithMetadataBackend(cfg.MetadataBackend),
		barangay.WithMetadataDsn(cfg.MetadataDsn),
		barangay.WithListenAddress(
			net.JoinHostPort(cfg.BindAddr, strconv.FormatUint(uint64(cfg.ApiPort), 10)),
		),
		barangay.WithTLS(cfg.TlsCertFilePath, cfg.TlsKeyFilePath, cfg.TlsClientCaFilePath),
		barangay.WithPrincipalSource(api.PrincipalSource(cfg.PrincipalSource)),
		barangay.WithRoleOracle(cfg.RoleOracle),
		barangay.WithTrustDomain(cfg.TrustDomain),
		barangay.WithNats(cfg.NatsUrl, cfg.NatsSubjectPrefix),
		barangay.WithRelayInterval(relayInterval),
		barangay.WithPrometheusRegistry(registry),
		barangay.WithTracing(cfg.Tracing),
		barangay.WithTracingStdout(cfg.TracingStdout),
		barangay.WithShutdownTimeout(shutdownTimeout),
	), nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	nodeCfg, err := NodeConfig(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	n, err := barangay.New(nodeCfg)
	if err != nil {
		return err
	}
	// Metrics listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		metricsAddr := net.JoinHostPort(
			cfg.BindAddr,
			strconv.FormatUint(uint64(cfg.MetricsPort), 10),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "component", "node", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		errChan <- n.Run(signalCtx)
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown", "component", "node")
		shutdownMetrics()
		if err := n.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "component", "node", "error", err)
			return err
		}
		logger.Info("shutdown complete", "component", "node")
		return nil

	case err := <-errChan:
		shutdownMetrics()
		if err == nil {
			logger.Info("node stopped", "component", "node")
			return n.Stop()
		}
		logger.Error("node error", "component", "node", "error", err)
		// Run already released its resources
		return err
	}
}
