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

package metadata

import (
	"time"

	"github.com/blinklabs-io/barangay/database/models"
	"gorm.io/gorm"
)

// AddOutboxEvent appends an event to the outbox. The sequence number is
// assigned by the database
func (d *MetadataStore) AddOutboxEvent(
	evt *models.OutboxEvent,
	txn *gorm.DB,
) error {
	if result := d.conn(txn).Create(evt); result.Error != nil {
		return result.Error
	}
	return nil
}

// GetPendingOutboxEvents returns undelivered events in sequence order
func (d *MetadataStore) GetPendingOutboxEvents(
	limit int,
	txn *gorm.DB,
) ([]models.OutboxEvent, error) {
	var ret []models.OutboxEvent
	result := d.conn(txn).
		Where("delivered_at IS NULL").
		Order("sequence").
		Limit(limit).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// CountPendingOutboxEvents returns the number of undelivered events
func (d *MetadataStore) CountPendingOutboxEvents(txn *gorm.DB) (int64, error) {
	var count int64
	result := d.conn(txn).
		Model(&models.OutboxEvent{}).
		Where("delivered_at IS NULL").
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// SetOutboxEventsDelivered marks the given events as delivered
func (d *MetadataStore) SetOutboxEventsDelivered(
	sequences []uint64,
	deliveredAt time.Time,
	txn *gorm.DB,
) error {
	if len(sequences) == 0 {
		return nil
	}
	result := d.conn(txn).
		Model(&models.OutboxEvent{}).
		Where("sequence IN ?", sequences).
		Update("delivered_at", deliveredAt)
	return result.Error
}
