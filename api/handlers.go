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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/project"
)

const maxRequestBodySize = 1 << 20

// writeJSON writes a JSON response with the given status
// code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(
	w http.ResponseWriter,
	status int,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
		RequestID:  w.Header().Get(RequestIDHeader),
	})
}

// statusForError maps an error to the HTTP status returned to the caller
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrNoPrincipal):
		return http.StatusUnauthorized
	case errors.Is(err, project.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, project.ErrProjectNotFound),
		errors.Is(err, project.ErrMilestoneNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrInvalidSchedule),
		errors.Is(err, project.ErrInvalidProject),
		errors.Is(err, ErrInvalidPaginationParameters):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrInvalidState),
		errors.Is(err, project.ErrExpired),
		errors.Is(err, project.ErrAlreadyVoted),
		errors.Is(err, project.ErrConsensusNotReached),
		errors.Is(err, project.ErrTransferFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleFailure writes the response for an error. Internal errors are logged
// and not exposed to the caller
func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return project.NewError(project.ErrInvalidProject, 0, "malformed request body: %s", err)
	}
	return nil
}

func pathProjectID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", project.ErrProjectNotFound, r.PathValue("id"))
	}
	return id, nil
}

func pathMilestoneIndex(r *http.Request) (uint32, error) {
	idx, err := strconv.ParseUint(r.PathValue("index"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", project.ErrMilestoneNotFound, r.PathValue("index"))
	}
	return uint32(idx), nil
}

func queryUint(r *http.Request, name string) (uint64, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return 0, nil
	}
	ret, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPaginationParameters, name)
	}
	return ret, nil
}

func (s *Server) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	caller, err := principalFromRequest(r, s.config.PrincipalSource)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleFailure(w, r, err)
		return
	}
	p, err := s.engine.CreateProject(
		r.Context(),
		caller,
		project.NewProject{
			Proposer:    req.Proposer,
			Vendor:      req.Vendor,
			Budget:      req.Budget,
			Category:    req.Category,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			MetadataURI: req.MetadataURI,
			ReleaseBps:  req.ReleaseBps,
		},
	)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v0/projects/%d", p.ID))
	writeJSON(w, http.StatusCreated, newProjectResponse(p))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePagination(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	projects, total, err := s.engine.ListProjects(
		r.Context(),
		database.ListOptions{
			Vendor:     r.URL.Query().Get("vendor"),
			Offset:     params.Offset(),
			Limit:      params.Count,
			Descending: params.Order == PaginationOrderDesc,
		},
	)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	ret := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		ret = append(ret, newProjectResponse(p))
	}
	SetPaginationHeaders(w, total, params)
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleProjectCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.GetProjectCount(r.Context())
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathProjectID(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	p, err := s.engine.GetProject(r.Context(), id)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectResponse(p))
}

func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	id, err := pathProjectID(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	idx, err := pathMilestoneIndex(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	m, err := s.engine.GetMilestone(r.Context(), id, idx)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	id, err := pathProjectID(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	idx, err := pathMilestoneIndex(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	voter := r.PathValue("voter")
	voted, err := s.engine.HasVoted(r.Context(), id, idx, voter)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteResponse{
		ProjectID:      id,
		MilestoneIndex: idx,
		Voter:          voter,
		Voted:          voted,
	})
}

// transition decodes the common parts of a milestone transition request and
// runs fn with the caller and project id
func (s *Server) transition(
	w http.ResponseWriter,
	r *http.Request,
	body any,
	fn func(caller string, projectID uint64) (*project.Project, error),
) {
	caller, err := principalFromRequest(r, s.config.PrincipalSource)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	id, err := pathProjectID(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	if body != nil {
		if err := decodeBody(r, body); err != nil {
			s.handleFailure(w, r, err)
			return
		}
	}
	p, err := fn(caller, id)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectResponse(p))
}

func (s *Server) handleSubmitMilestone(w http.ResponseWriter, r *http.Request) {
	var req SubmitMilestoneRequest
	s.transition(w, r, &req, func(caller string, id uint64) (*project.Project, error) {
		return s.engine.SubmitMilestone(r.Context(), caller, id, req.EvidenceURI)
	})
}

func (s *Server) handleVerifyMilestone(w http.ResponseWriter, r *http.Request) {
	var req VerifyMilestoneRequest
	s.transition(w, r, &req, func(caller string, id uint64) (*project.Project, error) {
		if req.Consensus == nil {
			return nil, project.NewError(project.ErrInvalidProject, id, "consensus is required")
		}
		return s.engine.VerifyMilestone(r.Context(), caller, id, *req.Consensus)
	})
}

func (s *Server) handleCompleteMilestone(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, nil, func(caller string, id uint64) (*project.Project, error) {
		return s.engine.CompleteMilestone(r.Context(), caller, id)
	})
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	id, err := pathProjectID(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	if _, err := s.engine.GetProject(r.Context(), id); err != nil {
		s.handleFailure(w, r, err)
		return
	}
	total, err := s.treasury.TotalReleased(id)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	releases, err := s.treasury.ListReleases(id)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleasesResponse{
		ProjectID:     id,
		TotalReleased: total,
		Releases:      releases,
	})
}

func (s *Server) handleProjectEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathProjectID(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	params, err := ParsePagination(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	from, err := queryUint(r, "from")
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	events, err := s.journal.JournalListProject(id, from, params.Count)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePagination(r)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	from, err := queryUint(r, "from")
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	events, err := s.journal.JournalList(from, params.Count)
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	summary, err := s.treasury.Balance(r.Context())
	if err != nil {
		s.handleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
