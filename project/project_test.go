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
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blinklabs-io/barangay/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorumReached(t *testing.T) {
	for up := uint64(0); up <= 12; up++ {
		for down := uint64(0); down <= 12; down++ {
			m := project.Milestone{Upvotes: up, Downvotes: down}
			expected := up > down && up-down >= project.QuorumVotes
			assert.Equal(t, expected, m.QuorumReached(), "up=%d down=%d", up, down)
		}
	}
	m := project.Milestone{Upvotes: 5, Downvotes: 1}
	assert.False(t, m.QuorumReached())
	m.Upvotes = 6
	assert.True(t, m.QuorumReached())
}

func TestExpired(t *testing.T) {
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := project.Project{EndDate: end}
	assert.False(t, p.Expired(end.Add(-time.Nanosecond)))
	assert.True(t, p.Expired(end))
	assert.True(t, p.Expired(end.Add(time.Hour)))
}

func TestCurrentAndComplete(t *testing.T) {
	p := project.Project{
		Milestones: []project.Milestone{{Index: 0}, {Index: 1}},
	}
	require.NotNil(t, p.Current())
	assert.Equal(t, uint32(0), p.Current().Index)
	assert.False(t, p.IsLastMilestone(0))
	assert.True(t, p.IsLastMilestone(1))
	assert.False(t, p.IsComplete())
	p.Milestones[1].Status = project.MilestoneStatusDone
	assert.True(t, p.IsComplete())
	p.CurrentMilestone = 2
	assert.Nil(t, p.Current())
}

func TestCategory(t *testing.T) {
	c, err := project.ParseCategory("communityevents")
	require.NoError(t, err)
	assert.Equal(t, project.CategoryCommunityEvents, c)
	_, err = project.ParseCategory("Parks")
	assert.ErrorIs(t, err, project.ErrInvalidProject)
	assert.Equal(t, "Category(99)", project.Category(99).String())

	var out struct {
		Category project.Category `json:"category"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"category":"Health"}`), &out))
	assert.Equal(t, project.CategoryHealth, out.Category)
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"Health"}`, string(data))
}

func TestError(t *testing.T) {
	err := project.NewError(project.ErrExpired, 3, "ended at %s", "noon")
	assert.Equal(t, "project expired: project 3: ended at noon", err.Error())
	assert.ErrorIs(t, err, project.ErrExpired)
	wrapped := fmt.Errorf("submit: %w", err)
	assert.True(t, project.IsPrecondition(wrapped))
	assert.False(t, project.IsPrecondition(errors.New("disk full")))
	noID := project.NewError(project.ErrInvalidSchedule, 0, "short")
	assert.Equal(t, "invalid release schedule: short", noID.Error())
}

func TestDecodeEvent(t *testing.T) {
	payload, err := json.Marshal(project.MilestoneVerifiedEvent{
		ProjectID:      4,
		MilestoneIndex: 1,
		Voter:          "juan",
		Consensus:      true,
		Upvotes:        3,
	})
	require.NoError(t, err)
	evt, err := project.DecodeEvent(project.EventTypeMilestoneVerified, payload)
	require.NoError(t, err)
	verified, ok := evt.(*project.MilestoneVerifiedEvent)
	require.True(t, ok)
	assert.Equal(t, "juan", verified.Voter)
	assert.Equal(t, uint64(3), verified.Upvotes)

	_, err = project.DecodeEvent("bogus", payload)
	assert.Error(t, err)
	_, err = project.DecodeEvent(project.EventTypeProjectCreated, []byte("{"))
	assert.Error(t, err)
}
