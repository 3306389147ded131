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

package project

import (
	"encoding/json"
	"fmt"
	"time"
)

// Domain event types. Exactly one event is emitted per successful
// state-changing operation
const (
	EventTypeProjectCreated     = "project.created"
	EventTypeMilestoneSubmitted = "milestone.submitted"
	EventTypeMilestoneVerified  = "milestone.verified"
	EventTypeMilestoneCompleted = "milestone.completed"
	EventTypeTreasuryDeposited  = "treasury.deposited"
)

// EventTypes lists every domain event type
var EventTypes = []string{
	EventTypeProjectCreated,
	EventTypeMilestoneSubmitted,
	EventTypeMilestoneVerified,
	EventTypeMilestoneCompleted,
	EventTypeTreasuryDeposited,
}

type ProjectCreatedEvent struct {
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	Proposer       string    `json:"proposer"`
	Vendor         string    `json:"vendor"`
	MetadataURI    string    `json:"metadataUri"`
	ProjectID      uint64    `json:"projectId"`
	Budget         uint64    `json:"budget"`
	AdvancePayment uint64    `json:"advancePayment"`
	Category       Category  `json:"category"`
}

type MilestoneSubmittedEvent struct {
	Vendor         string `json:"vendor"`
	EvidenceURI    string `json:"evidenceUri"`
	ProjectID      uint64 `json:"projectId"`
	MilestoneIndex uint32 `json:"milestoneIndex"`
}

type MilestoneVerifiedEvent struct {
	Voter          string `json:"voter"`
	ProjectID      uint64 `json:"projectId"`
	Upvotes        uint64 `json:"upvotes"`
	Downvotes      uint64 `json:"downvotes"`
	MilestoneIndex uint32 `json:"milestoneIndex"`
	Consensus      bool   `json:"consensus"`
}

type MilestoneCompletedEvent struct {
	ProjectID         uint64 `json:"projectId"`
	ReleaseAmount     uint64 `json:"releaseAmount"`
	MilestoneIndex    uint32 `json:"milestoneIndex"`
	IsProjectComplete bool   `json:"isProjectComplete"`
}

type TreasuryDepositedEvent struct {
	Depositor string `json:"depositor"`
	Amount    uint64 `json:"amount"`
	Balance   uint64 `json:"balance"`
}

// DecodeEvent decodes an event payload into its typed form
func DecodeEvent(eventType string, payload []byte) (any, error) {
	var ret any
	switch eventType {
	case EventTypeProjectCreated:
		ret = &ProjectCreatedEvent{}
	case EventTypeMilestoneSubmitted:
		ret = &MilestoneSubmittedEvent{}
	case EventTypeMilestoneVerified:
		ret = &MilestoneVerifiedEvent{}
	case EventTypeMilestoneCompleted:
		ret = &MilestoneCompletedEvent{}
	case EventTypeTreasuryDeposited:
		ret = &TreasuryDepositedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	if err := json.Unmarshal(payload, ret); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	return ret, nil
}
