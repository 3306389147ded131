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

// Package outbox relays committed domain events from the transactional
// outbox to the activity journal and the event bus.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/event"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultInterval  = time.Second
	DefaultBatchSize = 100
)

var ErrRelayRunning = errors.New("outbox relay already running")

type RelayConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Interval between polls of the outbox when no notification arrives
	Interval  time.Duration
	BatchSize int
}

// Relay moves events out of the outbox in sequence order. Each batch is
// written to the journal, published on the event bus and then marked
// delivered, so an interrupted batch is delivered again on the next pass
type Relay struct {
	config   RelayConfig
	metrics  relayMetrics
	notifyCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	flushMu  sync.Mutex
	mu       sync.Mutex
	started  bool
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.Database == nil {
		return nil, errors.New("outbox relay requires a database")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "outbox")
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	r := &Relay{
		config:   cfg,
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if cfg.PromRegistry != nil {
		r.metrics.init(cfg.PromRegistry)
	}
	return r, nil
}

// Start runs the relay loop in the background until ctx is done or Stop is
// called
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRelayRunning
	}
	r.started = true
	go r.run(ctx)
	return nil
}

// Stop ends the relay loop after a final flush and waits for it to exit
func (r *Relay) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if started {
		<-r.doneCh
	}
}

// Notify wakes the relay loop. It never blocks
func (r *Relay) Notify() {
	select {
	case r.notifyCh <- struct{}{}:
	default:
	}
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()
	r.flushAndLog()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			r.flushAndLog()
			return
		case <-ticker.C:
		case <-r.notifyCh:
		}
		r.flushAndLog()
	}
}

func (r *Relay) flushAndLog() {
	count, err := r.Flush()
	if err != nil {
		r.metrics.failed()
		r.config.Logger.Error(
			"failed to relay outbox events",
			"error", err,
		)
		return
	}
	if count > 0 {
		r.config.Logger.Debug(
			"relayed outbox events",
			"count", count,
		)
	}
}

// Flush relays every pending event and returns how many were delivered
func (r *Relay) Flush() (int, error) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()
	db := r.config.Database
	total := 0
	for {
		pending, err := db.OutboxPending(r.config.BatchSize, nil)
		if err != nil {
			return total, fmt.Errorf("load pending events: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		if err := db.JournalAppend(pending); err != nil {
			return total, fmt.Errorf("append to journal: %w", err)
		}
		sequences := make([]uint64, 0, len(pending))
		for _, evt := range pending {
			if r.config.EventBus != nil {
				evtType := event.EventType(evt.Type)
				r.config.EventBus.Publish(
					evtType,
					event.Event{
						Type:      evtType,
						Timestamp: evt.CreatedAt,
						Data:      evt,
					},
				)
			}
			sequences = append(sequences, evt.Sequence)
		}
		err = db.Update(func(txn *database.Txn) error {
			return db.OutboxMarkDelivered(sequences, time.Now().UTC(), txn)
		})
		if err != nil {
			return total, fmt.Errorf("mark events delivered: %w", err)
		}
		total += len(pending)
		r.metrics.relayed(len(pending), pending[len(pending)-1].Sequence)
		if len(pending) < r.config.BatchSize {
			break
		}
	}
	backlog, err := db.OutboxPendingCount(nil)
	if err != nil {
		return total, fmt.Errorf("count pending events: %w", err)
	}
	r.metrics.setBacklog(backlog)
	return total, nil
}
