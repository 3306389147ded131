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

// MilestoneVote is an append-only record of one citizen vote. The unique
// index makes a second vote for the same milestone fail at the storage layer
type MilestoneVote struct {
	CreatedAt      time.Time
	Voter          string `gorm:"uniqueIndex:idx_milestone_vote_unique,priority:3;size:255;not null"`
	ID             uint   `gorm:"primarykey"`
	ProjectID      uint64 `gorm:"uniqueIndex:idx_milestone_vote_unique,priority:1;not null"`
	MilestoneIndex uint32 `gorm:"uniqueIndex:idx_milestone_vote_unique,priority:2;not null"`
	Consensus      bool   `gorm:"not null"`
}

func (MilestoneVote) TableName() string {
	return "milestone_vote"
}
