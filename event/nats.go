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

package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultNatsSubjectPrefix = "barangay.events"

// NatsMessage is the JSON document published for each event
type NatsMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// NatsSubscriber forwards events to a NATS subject derived from the event
// type (<prefix>.<type>). It does not own the connection
type NatsSubscriber struct {
	conn   *nats.Conn
	logger *slog.Logger
	prefix string
	mu     sync.Mutex
	closed bool
}

func NewNatsSubscriber(
	conn *nats.Conn,
	prefix string,
	logger *slog.Logger,
) (*NatsSubscriber, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultNatsSubjectPrefix
	}
	return &NatsSubscriber{
		conn:   conn,
		prefix: prefix,
		logger: logger.With("component", "event"),
	}, nil
}

// Subject returns the NATS subject used for an event type
func (n *NatsSubscriber) Subject(eventType EventType) string {
	return n.prefix + "." + string(eventType)
}

func (n *NatsSubscriber) Deliver(evt Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	data, err := json.Marshal(NatsMessage{
		Timestamp: evt.Timestamp,
		Type:      evt.Type,
		Data:      evt.Data,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(evt.Type), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (n *NatsSubscriber) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	if err := n.conn.Flush(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		n.logger.Debug("failed to flush nats connection", "error", err)
	}
}

// ConnectNats opens a NATS connection that reconnects indefinitely and logs
// connection state changes
func ConnectNats(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "event")
	conn, err := nats.Connect(
		url,
		nats.Name("barangay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return conn, nil
}
