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
	"math/bits"
	"strings"
	"time"
)

// NewProject holds the caller-supplied input for project creation
type NewProject struct {
	StartDate   time.Time
	EndDate     time.Time
	Proposer    string
	Vendor      string
	MetadataURI string
	// ReleaseBps is the full release schedule. The first entry is the advance
	// payment, the remaining entries are per-milestone releases in order
	ReleaseBps []uint32
	Budget     uint64
	Category   Category
}

// ValidateSchedule checks that a release schedule has at least
// MinReleaseBpsLength entries and sums to exactly BpsDenominator
func ValidateSchedule(releaseBps []uint32) error {
	if len(releaseBps) < MinReleaseBpsLength {
		return NewError(
			ErrInvalidSchedule,
			0,
			"schedule has %d entries, need at least %d",
			len(releaseBps),
			MinReleaseBpsLength,
		)
	}
	var total uint64
	for i, bps := range releaseBps {
		if bps > BpsDenominator {
			return NewError(
				ErrInvalidSchedule,
				0,
				"entry %d is %d bps, above %d",
				i,
				bps,
				BpsDenominator,
			)
		}
		total += uint64(bps)
	}
	if total != BpsDenominator {
		return NewError(
			ErrInvalidSchedule,
			0,
			"schedule sums to %d bps, expected %d",
			total,
			BpsDenominator,
		)
	}
	return nil
}

// Validate checks the creation input
func (n *NewProject) Validate() error {
	if strings.TrimSpace(n.Proposer) == "" {
		return NewError(ErrInvalidProject, 0, "proposer is required")
	}
	if strings.TrimSpace(n.Vendor) == "" {
		return NewError(ErrInvalidProject, 0, "vendor is required")
	}
	if n.Budget == 0 {
		return NewError(ErrInvalidProject, 0, "budget must be positive")
	}
	if !n.Category.Valid() {
		return NewError(ErrInvalidProject, 0, "unknown category %d", n.Category)
	}
	if !n.EndDate.After(n.StartDate) {
		return NewError(
			ErrInvalidProject,
			0,
			"end date %s is not after start date %s",
			n.EndDate.Format(time.RFC3339),
			n.StartDate.Format(time.RFC3339),
		)
	}
	return ValidateSchedule(n.ReleaseBps)
}

// Build creates the project record for an already validated input. The
// advance payment is computed from the first schedule entry and counted as
// released
func (n *NewProject) Build(id uint64, now time.Time) *Project {
	p := &Project{
		ID:          id,
		Proposer:    n.Proposer,
		Vendor:      n.Vendor,
		Budget:      n.Budget,
		Category:    n.Category,
		StartDate:   n.StartDate.UTC(),
		EndDate:     n.EndDate.UTC(),
		CreatedAt:   now.UTC(),
		MetadataURI: n.MetadataURI,
		AdvanceBps:  n.ReleaseBps[0],
		Milestones:  make([]Milestone, 0, len(n.ReleaseBps)-1),
	}
	p.AdvancePayment = ReleaseAmount(p.Budget, p.AdvanceBps)
	p.Released = p.AdvancePayment
	for i, bps := range n.ReleaseBps[1:] {
		p.Milestones = append(
			p.Milestones,
			Milestone{
				Index:      uint32(i), //nolint:gosec // bounded by schedule length
				ReleaseBps: bps,
				Status:     MilestoneStatusPending,
			},
		)
	}
	return p
}

// ReleaseAmount returns floor(budget * bps / BpsDenominator) without
// overflowing for large budgets
func ReleaseAmount(budget uint64, bps uint32) uint64 {
	if bps > BpsDenominator {
		bps = BpsDenominator
	}
	hi, lo := bits.Mul64(budget, uint64(bps))
	quo, _ := bits.Div64(hi, lo, BpsDenominator)
	return quo
}

// MilestonePayout returns the amount released when the milestone at idx
// completes. A zero-bps milestone pays nothing. The last milestone with a
// non-zero share pays whatever remains of the budget so that rounding dust
// is never stranded
func MilestonePayout(p *Project, idx uint32) uint64 {
	if int(idx) >= len(p.Milestones) {
		return 0
	}
	m := p.Milestones[idx]
	if m.ReleaseBps == 0 {
		return 0
	}
	for _, later := range p.Milestones[idx+1:] {
		if later.ReleaseBps > 0 {
			return ReleaseAmount(p.Budget, m.ReleaseBps)
		}
	}
	if p.Released >= p.Budget {
		return 0
	}
	return p.Budget - p.Released
}
