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

import (
	"time"

	"github.com/blinklabs-io/barangay/database/types"
)

const (
	TreasuryAccountID = 1

	ReleaseKindAdvance   = "advance"
	ReleaseKindMilestone = "milestone"
)

// TreasuryAccount holds the single custodial balance
type TreasuryAccount struct {
	UpdatedAt      time.Time
	ID             uint         `gorm:"primarykey"`
	Balance        types.Uint64 `gorm:"not null"`
	TotalDeposited types.Uint64 `gorm:"not null"`
	TotalReleased  types.Uint64 `gorm:"not null"`
}

func (TreasuryAccount) TableName() string {
	return "treasury_account"
}

type TreasuryDeposit struct {
	CreatedAt time.Time
	Depositor string       `gorm:"size:255"`
	ID        uint         `gorm:"primarykey"`
	Amount    types.Uint64 `gorm:"not null"`
}

func (TreasuryDeposit) TableName() string {
	return "treasury_deposit"
}

type TreasuryRelease struct {
	CreatedAt      time.Time
	MilestoneIndex *uint32
	Kind           string       `gorm:"size:16;not null"`
	Recipient      string       `gorm:"size:255;not null"`
	ID             uint         `gorm:"primarykey"`
	ProjectID      uint64       `gorm:"index;not null"`
	Amount         types.Uint64 `gorm:"not null"`
	Category       uint8        `gorm:"index;not null"`
}

func (TreasuryRelease) TableName() string {
	return "treasury_release"
}
