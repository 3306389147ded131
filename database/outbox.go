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

package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/database/types"
)

// Event is a committed domain event as stored in the outbox and the journal
type Event struct {
	CreatedAt time.Time       `json:"createdAt"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Sequence  uint64          `json:"sequence"`
	ProjectID uint64          `json:"projectId"`
}

// OutboxAppend encodes the payload and appends it to the outbox within the
// given transaction. It returns the assigned sequence number
func (d *Database) OutboxAppend(
	eventType string,
	projectID uint64,
	payload any,
	createdAt time.Time,
	txn *Txn,
) (uint64, error) {
	if txn == nil {
		return 0, types.ErrNilTxn
	}
	if !txn.ReadWrite() {
		return 0, types.ErrReadOnlyTxn
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	tmpEvent := &models.OutboxEvent{
		EventType: eventType,
		ProjectID: projectID,
		Payload:   data,
		CreatedAt: createdAt,
	}
	if err := d.metadata.AddOutboxEvent(tmpEvent, txn.Metadata()); err != nil {
		return 0, fmt.Errorf("append outbox event: %w", err)
	}
	return tmpEvent.Sequence, nil
}

// OutboxPending returns up to limit undelivered events in sequence order
func (d *Database) OutboxPending(limit int, txn *Txn) ([]Event, error) {
	rows, err := d.metadata.GetPendingOutboxEvents(limit, metadataHandle(txn))
	if err != nil {
		return nil, err
	}
	ret := make([]Event, 0, len(rows))
	for _, row := range rows {
		ret = append(
			ret,
			Event{
				Sequence:  row.Sequence,
				Type:      row.EventType,
				ProjectID: row.ProjectID,
				Payload:   row.Payload,
				CreatedAt: row.CreatedAt.UTC(),
			},
		)
	}
	return ret, nil
}

// OutboxPendingCount returns the number of undelivered events
func (d *Database) OutboxPendingCount(txn *Txn) (uint64, error) {
	count, err := d.metadata.CountPendingOutboxEvents(metadataHandle(txn))
	if err != nil {
		return 0, err
	}
	return uint64(count), nil //nolint:gosec // count is never negative
}

// OutboxMarkDelivered marks events as delivered so they are not relayed again
func (d *Database) OutboxMarkDelivered(
	sequences []uint64,
	deliveredAt time.Time,
	txn *Txn,
) error {
	return d.metadata.SetOutboxEventsDelivered(sequences, deliveredAt, metadataHandle(txn))
}
