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

package database

import (
	"errors"
	"time"

	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/database/types"
	"github.com/blinklabs-io/barangay/project"
)

// VoteExists returns true if the voter already voted on the milestone
func (d *Database) VoteExists(
	projectID uint64,
	index uint32,
	voter string,
	txn *Txn,
) (bool, error) {
	vote, err := d.metadata.GetMilestoneVote(projectID, index, voter, metadataHandle(txn))
	if err != nil {
		return false, err
	}
	return vote != nil, nil
}

// VoteAdd records a vote. A repeated vote fails with project.ErrAlreadyVoted
func (d *Database) VoteAdd(
	projectID uint64,
	index uint32,
	voter string,
	consensus bool,
	createdAt time.Time,
	txn *Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	err := d.metadata.AddMilestoneVote(
		&models.MilestoneVote{
			ProjectID:      projectID,
			MilestoneIndex: index,
			Voter:          voter,
			Consensus:      consensus,
			CreatedAt:      createdAt,
		},
		txn.Metadata(),
	)
	if errors.Is(err, types.ErrDuplicateKey) {
		return project.NewError(
			project.ErrAlreadyVoted,
			projectID,
			"%s already voted on milestone %d",
			voter,
			index,
		)
	}
	return err
}

// VoteCount returns the number of votes recorded on a milestone
func (d *Database) VoteCount(projectID uint64, index uint32, txn *Txn) (uint64, error) {
	count, err := d.metadata.CountMilestoneVotes(projectID, index, metadataHandle(txn))
	if err != nil {
		return 0, err
	}
	return uint64(count), nil //nolint:gosec // count is never negative
}
