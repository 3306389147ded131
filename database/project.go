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
	"fmt"

	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/database/types"
	"github.com/blinklabs-io/barangay/project"
)

// ListOptions controls paging for list queries
type ListOptions struct {
	Vendor     string
	Offset     int
	Limit      int
	Descending bool
}

func projectFromModels(
	p *models.Project,
	milestones []models.Milestone,
) *project.Project {
	ret := &project.Project{
		ID:               p.ProjectID,
		Proposer:         p.Proposer,
		Vendor:           p.Vendor,
		Budget:           uint64(p.Budget),
		Category:         project.Category(p.Category),
		StartDate:        p.StartDate.UTC(),
		EndDate:          p.EndDate.UTC(),
		CreatedAt:        p.CreatedAt.UTC(),
		MetadataURI:      p.MetadataURI,
		AdvanceBps:       p.AdvanceBps,
		AdvancePayment:   uint64(p.AdvancePayment),
		Released:         uint64(p.Released),
		CurrentMilestone: p.CurrentMilestone,
		Milestones:       make([]project.Milestone, 0, len(milestones)),
	}
	for _, m := range milestones {
		ret.Milestones = append(ret.Milestones, milestoneFromModel(&m))
	}
	return ret
}

func milestoneFromModel(m *models.Milestone) project.Milestone {
	return project.Milestone{
		Index:         m.MilestoneIndex,
		ReleaseBps:    m.ReleaseBps,
		MetadataURI:   m.MetadataURI,
		Upvotes:       m.Upvotes,
		Downvotes:     m.Downvotes,
		ReleaseAmount: uint64(m.ReleaseAmount),
		Status:        project.MilestoneStatus(m.Status),
		IsReleased:    m.IsReleased,
	}
}

func milestoneToModel(projectID uint64, m *project.Milestone) *models.Milestone {
	return &models.Milestone{
		ProjectID:      projectID,
		MilestoneIndex: m.Index,
		ReleaseBps:     m.ReleaseBps,
		MetadataURI:    m.MetadataURI,
		Upvotes:        m.Upvotes,
		Downvotes:      m.Downvotes,
		ReleaseAmount:  types.Uint64(m.ReleaseAmount),
		Status:         uint8(m.Status),
		IsReleased:     m.IsReleased,
	}
}

func mapNotFound(err error, projectID uint64) error {
	switch {
	case errors.Is(err, models.ErrProjectNotFound):
		return project.NewError(project.ErrProjectNotFound, projectID, "no such project")
	case errors.Is(err, models.ErrMilestoneNotFound):
		return project.NewError(project.ErrMilestoneNotFound, projectID, "no such milestone")
	}
	return err
}

// ProjectGet returns a project with all of its milestones
func (d *Database) ProjectGet(projectID uint64, txn *Txn) (*project.Project, error) {
	p, err := d.metadata.GetProject(projectID, metadataHandle(txn))
	if err != nil {
		return nil, mapNotFound(err, projectID)
	}
	milestones, err := d.metadata.GetMilestones(projectID, metadataHandle(txn))
	if err != nil {
		return nil, fmt.Errorf("get milestones: %w", err)
	}
	return projectFromModels(p, milestones), nil
}

// MilestoneGet returns a single milestone of a project
func (d *Database) MilestoneGet(
	projectID uint64,
	index uint32,
	txn *Txn,
) (*project.Milestone, error) {
	// Distinguish an unknown project from an out of range index
	if _, err := d.metadata.GetProject(projectID, metadataHandle(txn)); err != nil {
		return nil, mapNotFound(err, projectID)
	}
	m, err := d.metadata.GetMilestone(projectID, index, metadataHandle(txn))
	if err != nil {
		return nil, mapNotFound(err, projectID)
	}
	ret := milestoneFromModel(m)
	return &ret, nil
}

// ProjectNextID returns the ID for the next created project
func (d *Database) ProjectNextID(txn *Txn) (uint64, error) {
	maxID, err := d.metadata.GetMaxProjectID(metadataHandle(txn))
	if err != nil {
		return 0, err
	}
	return maxID + 1, nil
}

// ProjectCount returns the number of projects, optionally limited to a vendor
func (d *Database) ProjectCount(vendor string, txn *Txn) (uint64, error) {
	count, err := d.metadata.CountProjects(vendor, metadataHandle(txn))
	if err != nil {
		return 0, err
	}
	return uint64(count), nil //nolint:gosec // count is never negative
}

// ProjectList returns a page of projects with their milestones
func (d *Database) ProjectList(
	opts ListOptions,
	txn *Txn,
) ([]*project.Project, error) {
	rows, err := d.metadata.ListProjects(
		opts.Vendor,
		opts.Offset,
		opts.Limit,
		opts.Descending,
		metadataHandle(txn),
	)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProjectID)
	}
	milestones, err := d.metadata.GetMilestonesForProjects(ids, metadataHandle(txn))
	if err != nil {
		return nil, fmt.Errorf("get milestones: %w", err)
	}
	byProject := make(map[uint64][]models.Milestone, len(rows))
	for _, m := range milestones {
		byProject[m.ProjectID] = append(byProject[m.ProjectID], m)
	}
	ret := make([]*project.Project, 0, len(rows))
	for i := range rows {
		ret = append(ret, projectFromModels(&rows[i], byProject[rows[i].ProjectID]))
	}
	return ret, nil
}

// ProjectCreate stores a new project and its milestones
func (d *Database) ProjectCreate(p *project.Project, txn *Txn) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	tmpProject := &models.Project{
		ProjectID:        p.ID,
		Proposer:         p.Proposer,
		Vendor:           p.Vendor,
		Budget:           types.Uint64(p.Budget),
		Category:         uint8(p.Category),
		StartDate:        p.StartDate,
		EndDate:          p.EndDate,
		CreatedAt:        p.CreatedAt,
		MetadataURI:      p.MetadataURI,
		AdvanceBps:       p.AdvanceBps,
		AdvancePayment:   types.Uint64(p.AdvancePayment),
		Released:         types.Uint64(p.Released),
		CurrentMilestone: p.CurrentMilestone,
	}
	milestones := make([]models.Milestone, 0, len(p.Milestones))
	for i := range p.Milestones {
		milestones = append(milestones, *milestoneToModel(p.ID, &p.Milestones[i]))
	}
	return d.metadata.AddProject(tmpProject, milestones, txn.Metadata())
}

// ProjectUpdate writes the project's progress and the given milestone
func (d *Database) ProjectUpdate(
	p *project.Project,
	milestone *project.Milestone,
	txn *Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	err := d.metadata.UpdateProject(
		&models.Project{
			ProjectID:        p.ID,
			CurrentMilestone: p.CurrentMilestone,
			Released:         types.Uint64(p.Released),
		},
		txn.Metadata(),
	)
	if err != nil {
		return mapNotFound(err, p.ID)
	}
	if milestone == nil {
		return nil
	}
	if err := d.metadata.UpdateMilestone(milestoneToModel(p.ID, milestone), txn.Metadata()); err != nil {
		return mapNotFound(err, p.ID)
	}
	return nil
}
