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

// Package project holds the civic project data model and the pure rules
// that govern release schedules and milestone payouts.
package project

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MinReleaseBpsLength is the minimum number of entries in a release
	// schedule: one advance payment slot plus at least two milestones
	MinReleaseBpsLength = 3
	// QuorumVotes is the minimum net approval (upvotes - downvotes)
	// required to complete a milestone
	QuorumVotes = 5
	// BpsDenominator is 100.00% expressed in basis points
	BpsDenominator = 10000
)

// Category classifies a project for reporting purposes
type Category uint8

const (
	CategoryInfrastructure Category = iota
	CategoryHealth
	CategoryEducation
	CategoryEnvironment
	CategoryLivelihood
	CategoryEmergency
	CategoryAdministration
	CategoryCommunityEvents
)

var categoryNames = map[Category]string{
	CategoryInfrastructure:  "Infrastructure",
	CategoryHealth:          "Health",
	CategoryEducation:       "Education",
	CategoryEnvironment:     "Environment",
	CategoryLivelihood:      "Livelihood",
	CategoryEmergency:       "Emergency",
	CategoryAdministration:  "Administration",
	CategoryCommunityEvents: "CommunityEvents",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Valid returns true if the category is one of the known categories
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory returns the category matching the given name (case-insensitive)
func ParseCategory(name string) (Category, error) {
	for c, n := range categoryNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidProject, name)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown category: %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	tmp, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = tmp
	return nil
}

// MilestoneStatus is the lifecycle state of a single milestone
type MilestoneStatus uint8

const (
	MilestoneStatusPending MilestoneStatus = iota
	MilestoneStatusForVerification
	MilestoneStatusDone
)

func (s MilestoneStatus) String() string {
	switch s {
	case MilestoneStatusPending:
		return "Pending"
	case MilestoneStatusForVerification:
		return "ForVerification"
	case MilestoneStatusDone:
		return "Done"
	default:
		return fmt.Sprintf("MilestoneStatus(%d)", uint8(s))
	}
}

func (s MilestoneStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MilestoneStatus) UnmarshalText(text []byte) error {
	for _, tmp := range []MilestoneStatus{
		MilestoneStatusPending,
		MilestoneStatusForVerification,
		MilestoneStatusDone,
	} {
		if tmp.String() == string(text) {
			*s = tmp
			return nil
		}
	}
	return fmt.Errorf("unknown milestone status %q", string(text))
}

// Project is one civic undertaking with its fixed milestone schedule
type Project struct {
	StartDate        time.Time   `json:"startDate"`
	EndDate          time.Time   `json:"endDate"`
	CreatedAt        time.Time   `json:"createdAt"`
	Proposer         string      `json:"proposer"`
	Vendor           string      `json:"vendor"`
	MetadataURI      string      `json:"metadataUri"`
	Milestones       []Milestone `json:"milestones"`
	ID               uint64      `json:"id"`
	Budget           uint64      `json:"budget"`
	AdvancePayment   uint64      `json:"advancePayment"`
	Released         uint64      `json:"released"`
	AdvanceBps       uint32      `json:"advanceBps"`
	CurrentMilestone uint32      `json:"currentMilestone"`
	Category         Category    `json:"category"`
}

// Milestone is one release-gated checkpoint within a project
type Milestone struct {
	MetadataURI   string          `json:"metadataUri"`
	Upvotes       uint64          `json:"upvotes"`
	Downvotes     uint64          `json:"downvotes"`
	ReleaseAmount uint64          `json:"releaseAmount"`
	Index         uint32          `json:"index"`
	ReleaseBps    uint32          `json:"releaseBps"`
	Status        MilestoneStatus `json:"status"`
	IsReleased    bool            `json:"isReleased"`
}

// Current returns the currently active milestone
func (p *Project) Current() *Milestone {
	if int(p.CurrentMilestone) >= len(p.Milestones) {
		return nil
	}
	return &p.Milestones[p.CurrentMilestone]
}

// IsLastMilestone returns true if the given index is the final milestone
func (p *Project) IsLastMilestone(idx uint32) bool {
	return int(idx) == len(p.Milestones)-1
}

// IsComplete returns true once the final milestone has reached Done
func (p *Project) IsComplete() bool {
	if len(p.Milestones) == 0 {
		return false
	}
	return p.Milestones[len(p.Milestones)-1].Status == MilestoneStatusDone
}

// Expired returns true if the given time is at or after the project deadline
func (p *Project) Expired(now time.Time) bool {
	return !now.Before(p.EndDate)
}

// NetVotes returns upvotes minus downvotes, or 0 when downvotes dominate
func (m *Milestone) NetVotes() uint64 {
	if m.Upvotes <= m.Downvotes {
		return 0
	}
	return m.Upvotes - m.Downvotes
}

// QuorumReached applies the completion rule: upvotes must exceed downvotes
// by at least QuorumVotes
func (m *Milestone) QuorumReached() bool {
	return m.Upvotes > m.Downvotes && m.NetVotes() >= QuorumVotes
}
