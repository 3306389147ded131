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

package models

import "time"

// OutboxEvent is a domain event written in the same transaction as the state
// change that produced it
type OutboxEvent struct {
	CreatedAt   time.Time
	DeliveredAt *time.Time `gorm:"index"`
	EventType   string     `gorm:"size:64;not null"`
	Payload     []byte
	Sequence    uint64 `gorm:"primarykey;autoIncrement"`
	ProjectID   uint64 `gorm:"index"`
}

func (OutboxEvent) TableName() string {
	return "outbox_event"
}
