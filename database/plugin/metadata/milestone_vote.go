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

package metadata

import (
	"errors"

	"github.com/blinklabs-io/barangay/database/models"
	"gorm.io/gorm"
)

// GetMilestoneVote returns the vote cast by a voter on a milestone, or nil if
// no vote exists
func (d *MetadataStore) GetMilestoneVote(
	projectID uint64,
	index uint32,
	voter string,
	txn *gorm.DB,
) (*models.MilestoneVote, error) {
	ret := &models.MilestoneVote{}
	result := d.conn(txn).
		Where(
			"project_id = ? AND milestone_index = ? AND voter = ?",
			projectID,
			index,
			voter,
		).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// AddMilestoneVote records a vote. A second vote by the same voter fails with
// types.ErrDuplicateKey
func (d *MetadataStore) AddMilestoneVote(
	vote *models.MilestoneVote,
	txn *gorm.DB,
) error {
	if result := d.conn(txn).Create(vote); result.Error != nil {
		return translateError(result.Error)
	}
	return nil
}

// CountMilestoneVotes returns the number of recorded votes on a milestone
func (d *MetadataStore) CountMilestoneVotes(
	projectID uint64,
	index uint32,
	txn *gorm.DB,
) (int64, error) {
	var count int64
	result := d.conn(txn).
		Model(&models.MilestoneVote{}).
		Where("project_id = ? AND milestone_index = ?", projectID, index).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
