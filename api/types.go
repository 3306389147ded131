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
	"time"

	"github.com/blinklabs-io/barangay/project"
	"github.com/blinklabs-io/barangay/treasury"
)

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId,omitempty"`
	StatusCode int    `json:"statusCode"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool `json:"isHealthy"`
}

// CreateProjectRequest is the body of POST /api/v0/projects
type CreateProjectRequest struct {
	StartDate   time.Time        `json:"startDate"`
	EndDate     time.Time        `json:"endDate"`
	Proposer    string           `json:"proposer"`
	Vendor      string           `json:"vendor"`
	MetadataURI string           `json:"metadataUri"`
	ReleaseBps  []uint32         `json:"releaseBps"`
	Budget      uint64           `json:"budget"`
	Category    project.Category `json:"category"`
}

// SubmitMilestoneRequest is the body of the milestone submit call
type SubmitMilestoneRequest struct {
	EvidenceURI string `json:"evidenceUri"`
}

// VerifyMilestoneRequest is the body of the milestone verify call
type VerifyMilestoneRequest struct {
	Consensus *bool `json:"consensus"`
}

// ProjectResponse is a project with derived completion state
type ProjectResponse struct {
	*project.Project
	IsComplete bool `json:"isComplete"`
}

func newProjectResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		Project:    p,
		IsComplete: p.IsComplete(),
	}
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type VoteResponse struct {
	Voter          string `json:"voter"`
	ProjectID      uint64 `json:"projectId"`
	MilestoneIndex uint32 `json:"milestoneIndex"`
	Voted          bool   `json:"voted"`
}

type ReleasesResponse struct {
	Releases      []treasury.Release `json:"releases"`
	ProjectID     uint64             `json:"projectId"`
	TotalReleased uint64             `json:"totalReleased"`
}
