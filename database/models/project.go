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

type Project struct {
	StartDate        time.Time
	EndDate          time.Time
	CreatedAt        time.Time
	Proposer         string `gorm:"size:255;not null"`
	Vendor           string `gorm:"index;size:255;not null"`
	MetadataURI      string
	ID               uint         `gorm:"primarykey"`
	ProjectID        uint64       `gorm:"uniqueIndex;not null"`
	Budget           types.Uint64 `gorm:"not null"`
	AdvancePayment   types.Uint64 `gorm:"not null"`
	Released         types.Uint64 `gorm:"not null"`
	AdvanceBps       uint32       `gorm:"not null"`
	CurrentMilestone uint32       `gorm:"not null"`
	Category         uint8        `gorm:"index;not null"`
}

func (Project) TableName() string {
	return "project"
}

type Milestone struct {
	MetadataURI    string
	ID             uint         `gorm:"primarykey"`
	ProjectID      uint64       `gorm:"uniqueIndex:idx_milestone_project_index,priority:1;not null"`
	Upvotes        uint64       `gorm:"not null"`
	Downvotes      uint64       `gorm:"not null"`
	ReleaseAmount  types.Uint64 `gorm:"not null"`
	MilestoneIndex uint32       `gorm:"uniqueIndex:idx_milestone_project_index,priority:2;not null"`
	ReleaseBps     uint32       `gorm:"not null"`
	Status         uint8        `gorm:"not null"`
	IsReleased     bool         `gorm:"not null"`
}

func (Milestone) TableName() string {
	return "milestone"
}
