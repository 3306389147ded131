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

// Package barangay wires the project registry, lifecycle engine, treasury,
// outbox relay and REST API into a runnable node.
package barangay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/barangay/api"
	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/event"
	"github.com/blinklabs-io/barangay/lifecycle"
	"github.com/blinklabs-io/barangay/outbox"
	"github.com/blinklabs-io/barangay/project"
	"github.com/blinklabs-io/barangay/roles"
	"github.com/blinklabs-io/barangay/treasury"
	"github.com/nats-io/nats.go"
)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	oracle        roles.Oracle
	treasury      *treasury.Treasury
	engine        *lifecycle.Engine
	relay         *outbox.Relay
	api           *api.Server
	natsConn      *nats.Conn
	runCancel     context.CancelFunc
	shutdownFuncs []func(context.Context) error
	logger        *slog.Logger
	config        Config
	ready         chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		logger:   cfg.logger.With("component", "node"),
		eventBus: eventBus,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Run starts all components and blocks until ctx is done or Stop is called.
// Startup failures release whatever was already started
func (n *Node) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			if stopErr := n.Stop(); stopErr != nil {
				n.logger.Error(
					"cleanup after failed startup",
					"error", stopErr,
				)
			}
		}
	}()
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:         n.config.dataDir,
		Logger:          n.config.logger,
		PromRegistry:    n.config.promRegistry,
		MetadataBackend: n.config.metadataBackend,
		MetadataDsn:     n.config.metadataDsn,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Role oracle
	n.oracle = n.config.roleOracle
	if n.oracle == nil {
		switch n.config.roleOracleName {
		case RoleOracleSpiffe:
			oracle, err := roles.NewSpiffeOracle(n.config.trustDomain)
			if err != nil {
				return err
			}
			n.oracle = oracle
		default:
			n.oracle = roles.NewDatabaseOracle(n.db, n.config.logger)
		}
	}
	// Fund custodian
	n.treasury = treasury.NewTreasury(treasury.TreasuryConfig{
		Database:     n.db,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Clock:        n.config.clock,
	})
	// Forward domain events to NATS
	if n.config.natsUrl != "" {
		if err := n.setupNats(); err != nil {
			return err
		}
	}
	// Outbox relay
	relay, err := outbox.NewRelay(outbox.RelayConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Interval:     n.config.relayInterval,
	})
	if err != nil {
		return err
	}
	n.relay = relay
	// Lifecycle engine
	engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
		Database:     n.db,
		Roles:        n.oracle,
		Custodian:    n.treasury,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Clock:        n.config.clock,
		Notify:       n.relay.Notify,
	})
	if err != nil {
		return fmt.Errorf("failed to create lifecycle engine: %w", err)
	}
	n.engine = engine
	runCtx, runCancel := context.WithCancel(ctx)
	n.runCancel = runCancel
	if err := n.relay.Start(runCtx); err != nil {
		return err
	}
	// API
	tlsConfig, err := n.apiTLSConfig()
	if err != nil {
		return err
	}
	n.api = api.New(
		api.Config{
			TLSConfig:       tlsConfig,
			PromRegistry:    n.config.promRegistry,
			ListenAddress:   n.config.listenAddress,
			PrincipalSource: n.config.principalSource,
		},
		n.engine,
		n.treasury,
		n.db,
		n.config.logger,
	)
	if err := n.api.Start(runCtx); err != nil {
		return err
	}
	close(n.ready)
	n.logger.Info("node started", "api_address", n.api.Addr().String())

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

func (n *Node) setupNats() error {
	conn, err := event.ConnectNats(n.config.natsUrl, n.config.logger)
	if err != nil {
		return err
	}
	n.natsConn = conn
	sub, err := event.NewNatsSubscriber(conn, n.config.natsSubjectPrefix, n.config.logger)
	if err != nil {
		return err
	}
	for _, eventType := range project.EventTypes {
		n.eventBus.RegisterSubscriber(event.EventType(eventType), sub)
	}
	n.logger.Info(
		"forwarding events to NATS",
		"url", conn.ConnectedUrlRedacted(),
		"subject_prefix", n.config.natsSubjectPrefix,
	)
	return nil
}

// Ready is closed once every component has started. The accessors below
// are only valid after that
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

func (n *Node) Engine() *lifecycle.Engine {
	return n.engine
}

func (n *Node) Treasury() *treasury.Treasury {
	return n.treasury
}

func (n *Node) Database() *database.Database {
	return n.db
}

// Roles returns the database role oracle, or nil when another oracle is
// in use
func (n *Node) Roles() *roles.DatabaseOracle {
	ret, _ := n.oracle.(*roles.DatabaseOracle)
	return ret
}

// APIAddr returns the address the API listens on
func (n *Node) APIAddr() net.Addr {
	if n.api == nil {
		return nil
	}
	return n.api.Addr()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	n.logger.Debug("shutdown phase 1: stopping new work")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Drain committed events
	n.logger.Debug("shutdown phase 2: draining events")

	if n.relay != nil {
		n.relay.Stop()
	}
	if n.runCancel != nil {
		n.runCancel()
	}
	if n.eventBus != nil {
		n.eventBus.Stop()
	}
	if n.natsConn != nil {
		n.natsConn.Close()
	}

	// Phase 3: Close database
	n.logger.Debug("shutdown phase 3: closing database")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	n.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
