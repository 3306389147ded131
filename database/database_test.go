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

package database_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testProject(id uint64) *project.Project {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	in := project.NewProject{
		Proposer:    "official",
		Vendor:      "vendor",
		Budget:      1_000_000,
		Category:    project.CategoryHealth,
		StartDate:   start,
		EndDate:     start.Add(30 * 24 * time.Hour),
		MetadataURI: "ipfs://p",
		ReleaseBps:  []uint32{3000, 6000, 1000},
	}
	return in.Build(id, start)
}

func TestInMemoryDatabasesAreIsolated(t *testing.T) {
	db1 := newTestDatabase(t)
	db2 := newTestDatabase(t)
	require.NoError(t, db1.Update(func(txn *database.Txn) error {
		return db1.ProjectCreate(testProject(1), txn)
	}))
	count, err := db2.ProjectCount("", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = db1.ProjectCount("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestProjectRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	p := testProject(1)
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		return db.ProjectCreate(p, txn)
	}))
	got, err := db.ProjectGet(1, nil)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	next, err := db.ProjectNextID(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	m, err := db.MilestoneGet(1, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), m.ReleaseBps)

	_, err = db.MilestoneGet(1, 2, nil)
	assert.ErrorIs(t, err, project.ErrMilestoneNotFound)
	_, err = db.MilestoneGet(5, 0, nil)
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
	_, err = db.ProjectGet(5, nil)
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestProjectUpdate(t *testing.T) {
	db := newTestDatabase(t)
	p := testProject(1)
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		return db.ProjectCreate(p, txn)
	}))
	p.Milestones[0].Status = project.MilestoneStatusDone
	p.Milestones[0].Upvotes = 6
	p.Milestones[0].ReleaseAmount = 600_000
	p.Milestones[0].IsReleased = true
	p.Milestones[0].MetadataURI = "ipfs://evidence"
	p.CurrentMilestone = 1
	p.Released = 900_000
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		return db.ProjectUpdate(p, &p.Milestones[0], txn)
	}))
	got, err := db.ProjectGet(1, nil)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := newTestDatabase(t)
	errTest := errors.New("test failure")
	err := db.Update(func(txn *database.Txn) error {
		if err := db.ProjectCreate(testProject(1), txn); err != nil {
			return err
		}
		if _, err := db.OutboxAppend("project.created", 1, map[string]int{"a": 1}, time.Now(), txn); err != nil {
			return err
		}
		return errTest
	})
	require.ErrorIs(t, err, errTest)
	count, err := db.ProjectCount("", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	pending, err := db.OutboxPendingCount(nil)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestProjectList(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		for i := uint64(1); i <= 5; i++ {
			p := testProject(i)
			if i%2 == 0 {
				p.Vendor = "other"
			}
			if err := db.ProjectCreate(p, txn); err != nil {
				return err
			}
		}
		return nil
	}))
	page, err := db.ProjectList(database.ListOptions{Offset: 1, Limit: 2}, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(3), page[1].ID)
	assert.Len(t, page[0].Milestones, 2)

	desc, err := db.ProjectList(database.ListOptions{Limit: 10, Descending: true, Vendor: "other"}, nil)
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, uint64(4), desc[0].ID)
	assert.Equal(t, uint64(2), desc[1].ID)

	count, err := db.ProjectCount("other", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestVoteUniqueness(t *testing.T) {
	db := newTestDatabase(t)
	now := time.Now()
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		return db.VoteAdd(1, 0, "citizen", true, now, txn)
	}))
	voted, err := db.VoteExists(1, 0, "citizen", nil)
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = db.VoteExists(1, 1, "citizen", nil)
	require.NoError(t, err)
	assert.False(t, voted)

	err = db.Update(func(txn *database.Txn) error {
		return db.VoteAdd(1, 0, "citizen", false, now, txn)
	})
	assert.ErrorIs(t, err, project.ErrAlreadyVoted)
	count, err := db.VoteCount(1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestOutboxAndJournal(t *testing.T) {
	db := newTestDatabase(t)
	now := time.Now().UTC().Truncate(time.Second)
	var seqs []uint64
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		for i, projectID := range []uint64{1, 2, 1} {
			seq, err := db.OutboxAppend("test.event", projectID, map[string]int{"n": i}, now, txn)
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	}))
	require.Len(t, seqs, 3)
	assert.Less(t, seqs[0], seqs[1])
	assert.Less(t, seqs[1], seqs[2])

	pending, err := db.OutboxPending(10, nil)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.JSONEq(t, `{"n":1}`, string(pending[1].Payload))

	require.NoError(t, db.JournalAppend(pending))
	// Appending again does not duplicate entries
	require.NoError(t, db.JournalAppend(pending))
	require.NoError(t, db.OutboxMarkDelivered(seqs, now, nil))
	count, err := db.OutboxPendingCount(nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	all, err := db.JournalList(0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, seqs[0], all[0].Sequence)
	assert.Equal(t, "test.event", all[0].Type)

	from, err := db.JournalList(seqs[1], 10)
	require.NoError(t, err)
	assert.Len(t, from, 2)

	limited, err := db.JournalList(0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	proj1, err := db.JournalListProject(1, 0, 10)
	require.NoError(t, err)
	require.Len(t, proj1, 2)
	assert.Equal(t, seqs[2], proj1[1].Sequence)

	last, err := db.JournalLastSequence()
	require.NoError(t, err)
	assert.Equal(t, seqs[2], last)
}

func TestRoleGrants(t *testing.T) {
	db := newTestDatabase(t)
	now := time.Now()
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		if err := db.RoleGrant("official", "alice", "bootstrap", now, txn); err != nil {
			return err
		}
		// Granting twice is a no-op
		if err := db.RoleGrant("official", "alice", "bootstrap", now, txn); err != nil {
			return err
		}
		return db.RoleGrant("citizen", "bob", "alice", now, txn)
	}))
	ok, err := db.RoleGranted("official", "alice", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	grants, err := db.RoleGrants("", nil)
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	var existed bool
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		var err error
		existed, err = db.RoleRevoke("official", "alice", txn)
		return err
	}))
	assert.True(t, existed)
	ok, err = db.RoleGranted("official", "alice", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTreasuryAccount(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		account, err := db.TreasuryAccount(txn)
		if err != nil {
			return err
		}
		account.Balance = 500
		account.TotalDeposited = 500
		if err := db.TreasurySetAccount(account, txn); err != nil {
			return err
		}
		idx := uint32(0)
		return db.TreasuryAddRelease(&models.TreasuryRelease{
			ProjectID:      3,
			Kind:           models.ReleaseKindMilestone,
			MilestoneIndex: &idx,
			Recipient:      "vendor",
			Amount:         100,
		}, txn)
	}))
	account, err := db.TreasuryAccount(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 500, account.Balance)
	releases, err := db.TreasuryReleases(3, nil)
	require.NoError(t, err)
	require.Len(t, releases, 1)
	require.NotNil(t, releases[0].MilestoneIndex)
	assert.Equal(t, uint32(0), *releases[0].MilestoneIndex)
}

func TestUpdateSerializesWriters(t *testing.T) {
	db := newTestDatabase(t)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Update(func(txn *database.Txn) error {
				id, err := db.ProjectNextID(txn)
				if err != nil {
					return err
				}
				return db.ProjectCreate(testProject(id), txn)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	count, err := db.ProjectCount("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), count)
	next, err := db.ProjectNextID(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), next)
}
