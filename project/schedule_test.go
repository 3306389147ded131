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

package project_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/blinklabs-io/barangay/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchedule(t *testing.T) {
	testDefs := []struct {
		name     string
		schedule []uint32
		valid    bool
	}{
		{name: "empty", schedule: nil},
		{name: "too short", schedule: []uint32{4000, 6000}},
		{name: "minimum length", schedule: []uint32{3000, 6000, 1000}, valid: true},
		{name: "zero close-out", schedule: []uint32{2000, 8000, 0}, valid: true},
		{name: "under 100%", schedule: []uint32{3000, 6000, 999}},
		{name: "over 100%", schedule: []uint32{3000, 6000, 1001}},
		{name: "entry above denominator", schedule: []uint32{20000, 0, 0}},
		{name: "long schedule", schedule: []uint32{1000, 1000, 1000, 1000, 1000, 5000}, valid: true},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			err := project.ValidateSchedule(testDef.schedule)
			if testDef.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, project.ErrInvalidSchedule)
			var projErr *project.Error
			assert.True(t, errors.As(err, &projErr))
		})
	}
}

func TestReleaseAmount(t *testing.T) {
	assert.Equal(t, uint64(300_000), project.ReleaseAmount(1_000_000, 3000))
	assert.Equal(t, uint64(0), project.ReleaseAmount(1_000_000, 0))
	assert.Equal(t, uint64(33), project.ReleaseAmount(333, 1000))
	// No overflow at the top of the range
	assert.Equal(t, uint64(math.MaxUint64), project.ReleaseAmount(math.MaxUint64, 10000))
	assert.Equal(t, uint64(math.MaxUint64/2), project.ReleaseAmount(math.MaxUint64, 5000))
}

func validInput() project.NewProject {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return project.NewProject{
		Proposer:    "official-1",
		Vendor:      "vendor-1",
		Budget:      1_000_000,
		Category:    project.CategoryInfrastructure,
		StartDate:   start,
		EndDate:     start.Add(90 * 24 * time.Hour),
		MetadataURI: "ipfs://project",
		ReleaseBps:  []uint32{3000, 6000, 1000},
	}
}

func TestNewProjectValidate(t *testing.T) {
	in := validInput()
	require.NoError(t, in.Validate())

	testDefs := []struct {
		name   string
		mutate func(*project.NewProject)
		kind   error
	}{
		{"no proposer", func(n *project.NewProject) { n.Proposer = " " }, project.ErrInvalidProject},
		{"no vendor", func(n *project.NewProject) { n.Vendor = "" }, project.ErrInvalidProject},
		{"zero budget", func(n *project.NewProject) { n.Budget = 0 }, project.ErrInvalidProject},
		{"bad category", func(n *project.NewProject) { n.Category = 42 }, project.ErrInvalidProject},
		{"end before start", func(n *project.NewProject) { n.EndDate = n.StartDate }, project.ErrInvalidProject},
		{"short schedule", func(n *project.NewProject) { n.ReleaseBps = []uint32{5000, 5000} }, project.ErrInvalidSchedule},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			in := validInput()
			testDef.mutate(&in)
			assert.ErrorIs(t, in.Validate(), testDef.kind)
		})
	}
}

func TestNewProjectBuild(t *testing.T) {
	in := validInput()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	p := in.Build(7, now)
	assert.Equal(t, uint64(7), p.ID)
	assert.Equal(t, uint64(300_000), p.AdvancePayment)
	assert.Equal(t, uint64(300_000), p.Released)
	assert.Equal(t, uint32(3000), p.AdvanceBps)
	assert.Equal(t, now, p.CreatedAt)
	require.Len(t, p.Milestones, 2)
	for i, m := range p.Milestones {
		assert.Equal(t, uint32(i), m.Index)
		assert.Equal(t, project.MilestoneStatusPending, m.Status)
		assert.Zero(t, m.Upvotes)
		assert.Zero(t, m.Downvotes)
		assert.False(t, m.IsReleased)
	}
	assert.Equal(t, uint32(6000), p.Milestones[0].ReleaseBps)
	assert.Equal(t, uint32(1000), p.Milestones[1].ReleaseBps)
}

// completeAll walks every milestone in order and applies the payout the way
// the lifecycle engine does
func completeAll(p *project.Project) uint64 {
	total := p.AdvancePayment
	for i := range p.Milestones {
		amount := project.MilestonePayout(p, uint32(i))
		p.Released += amount
		total += amount
	}
	return total
}

func TestMilestonePayoutRoundTrip(t *testing.T) {
	testDefs := []struct {
		budget   uint64
		schedule []uint32
	}{
		{1_000_000, []uint32{3000, 6000, 1000}},
		{999_999, []uint32{3333, 3333, 3334}},
		{7, []uint32{1, 9998, 1}},
		{101, []uint32{2500, 7500, 0}},
		{math.MaxUint64, []uint32{1234, 4321, 4445}},
		{12345, []uint32{0, 2500, 2500, 2500, 2500}},
	}
	for _, testDef := range testDefs {
		in := validInput()
		in.Budget = testDef.budget
		in.ReleaseBps = testDef.schedule
		require.NoError(t, in.Validate())
		p := in.Build(1, time.Now())
		assert.Equal(t, testDef.budget, completeAll(p), "budget %d schedule %v", testDef.budget, testDef.schedule)
	}
}

func TestMilestonePayoutCloseOut(t *testing.T) {
	in := validInput()
	in.ReleaseBps = []uint32{2000, 8000, 0}
	p := in.Build(1, time.Now())
	first := project.MilestonePayout(p, 0)
	assert.Equal(t, uint64(800_000), first)
	p.Released += first
	assert.Zero(t, project.MilestonePayout(p, 1))
	assert.Zero(t, project.MilestonePayout(p, 5))
}
