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
	"gorm.io/gorm/clause"
)

// GetProject returns the project with the given ID
func (d *MetadataStore) GetProject(
	projectID uint64,
	txn *gorm.DB,
) (*models.Project, error) {
	ret := &models.Project{}
	result := d.conn(txn).Where("project_id = ?", projectID).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrProjectNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetMilestones returns all milestones for a project in index order
func (d *MetadataStore) GetMilestones(
	projectID uint64,
	txn *gorm.DB,
) ([]models.Milestone, error) {
	var ret []models.Milestone
	result := d.conn(txn).
		Where("project_id = ?", projectID).
		Order("milestone_index").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetMilestonesForProjects returns the milestones for multiple projects,
// ordered by project and index
func (d *MetadataStore) GetMilestonesForProjects(
	projectIDs []uint64,
	txn *gorm.DB,
) ([]models.Milestone, error) {
	var ret []models.Milestone
	if len(projectIDs) == 0 {
		return ret, nil
	}
	result := d.conn(txn).
		Where("project_id IN ?", projectIDs).
		Order("project_id, milestone_index").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetMilestone returns a single milestone
func (d *MetadataStore) GetMilestone(
	projectID uint64,
	index uint32,
	txn *gorm.DB,
) (*models.Milestone, error) {
	ret := &models.Milestone{}
	result := d.conn(txn).
		Where("project_id = ? AND milestone_index = ?", projectID, index).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrMilestoneNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetMaxProjectID returns the highest assigned project ID, or 0 if none exist
func (d *MetadataStore) GetMaxProjectID(txn *gorm.DB) (uint64, error) {
	var maxID uint64
	result := d.conn(txn).
		Model(&models.Project{}).
		Select("COALESCE(MAX(project_id), 0)").
		Scan(&maxID)
	if result.Error != nil {
		return 0, result.Error
	}
	return maxID, nil
}

// CountProjects returns the number of projects, optionally for a single vendor
func (d *MetadataStore) CountProjects(
	vendor string,
	txn *gorm.DB,
) (int64, error) {
	var count int64
	query := d.conn(txn).Model(&models.Project{})
	if vendor != "" {
		query = query.Where("vendor = ?", vendor)
	}
	if result := query.Count(&count); result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// ListProjects returns a page of projects ordered by project ID
func (d *MetadataStore) ListProjects(
	vendor string,
	offset int,
	limit int,
	descending bool,
	txn *gorm.DB,
) ([]models.Project, error) {
	var ret []models.Project
	query := d.conn(txn).Model(&models.Project{})
	if vendor != "" {
		query = query.Where("vendor = ?", vendor)
	}
	result := query.
		Order(clause.OrderByColumn{
			Column: clause.Column{Name: "project_id"},
			Desc:   descending,
		}).
		Offset(offset).
		Limit(limit).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddProject inserts a project together with its milestones
func (d *MetadataStore) AddProject(
	project *models.Project,
	milestones []models.Milestone,
	txn *gorm.DB,
) error {
	db := d.conn(txn)
	if result := db.Create(project); result.Error != nil {
		return translateError(result.Error)
	}
	if len(milestones) == 0 {
		return nil
	}
	if result := db.Create(&milestones); result.Error != nil {
		return translateError(result.Error)
	}
	return nil
}

// UpdateProject writes the mutable project fields
func (d *MetadataStore) UpdateProject(
	project *models.Project,
	txn *gorm.DB,
) error {
	result := d.conn(txn).
		Model(&models.Project{}).
		Where("project_id = ?", project.ProjectID).
		Updates(map[string]any{
			"current_milestone": project.CurrentMilestone,
			"released":          project.Released,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrProjectNotFound
	}
	return nil
}

// UpdateMilestone writes the mutable milestone fields
func (d *MetadataStore) UpdateMilestone(
	milestone *models.Milestone,
	txn *gorm.DB,
) error {
	result := d.conn(txn).
		Model(&models.Milestone{}).
		Where(
			"project_id = ? AND milestone_index = ?",
			milestone.ProjectID,
			milestone.MilestoneIndex,
		).
		Updates(map[string]any{
			"metadata_uri":   milestone.MetadataURI,
			"upvotes":        milestone.Upvotes,
			"downvotes":      milestone.Downvotes,
			"release_amount": milestone.ReleaseAmount,
			"status":         milestone.Status,
			"is_released":    milestone.IsReleased,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrMilestoneNotFound
	}
	return nil
}
