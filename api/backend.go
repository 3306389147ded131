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

package api

import (
	"context"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/project"
	"github.com/blinklabs-io/barangay/treasury"
)

// Engine is the lifecycle interface used by the API server
type Engine interface {
	CreateProject(ctx context.Context, caller string, in project.NewProject) (*project.Project, error)
	SubmitMilestone(ctx context.Context, caller string, projectID uint64, evidenceURI string) (*project.Project, error)
	VerifyMilestone(ctx context.Context, caller string, projectID uint64, consensus bool) (*project.Project, error)
	CompleteMilestone(ctx context.Context, caller string, projectID uint64) (*project.Project, error)
	GetProject(ctx context.Context, projectID uint64) (*project.Project, error)
	GetMilestone(ctx context.Context, projectID uint64, index uint32) (*project.Milestone, error)
	GetProjectCount(ctx context.Context) (uint64, error)
	ListProjects(ctx context.Context, opts database.ListOptions) ([]*project.Project, uint64, error)
	HasVoted(ctx context.Context, projectID uint64, index uint32, voter string) (bool, error)
}

// Treasury is the fund reporting interface used by the API server
type Treasury interface {
	Balance(ctx context.Context) (treasury.Summary, error)
	TotalReleased(projectID uint64) (uint64, error)
	ListReleases(projectID uint64) ([]treasury.Release, error)
}

// Journal is the activity journal interface used by the API server
type Journal interface {
	JournalList(from uint64, limit int) ([]database.Event, error)
	JournalListProject(projectID uint64, from uint64, limit int) ([]database.Event, error)
}
