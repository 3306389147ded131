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

package project

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller lacks the required role or
	// relationship to the project
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidSchedule is returned for a malformed release schedule
	ErrInvalidSchedule = errors.New("invalid release schedule")
	// ErrInvalidState is returned when the current milestone is not in the
	// state required by the operation
	ErrInvalidState = errors.New("invalid milestone state")
	// ErrExpired is returned for operations attempted at or after the project end date
	ErrExpired = errors.New("project expired")
	// ErrAlreadyVoted is returned when a voter has already voted on the milestone
	ErrAlreadyVoted = errors.New("already voted")
	// ErrConsensusNotReached is returned when completion is attempted without quorum
	ErrConsensusNotReached = errors.New("consensus not reached")
	// ErrTransferFailed is returned when the fund custodian cannot complete a release
	ErrTransferFailed = errors.New("transfer failed")
	// ErrProjectNotFound is returned for an unknown project ID
	ErrProjectNotFound = errors.New("project not found")
	// ErrMilestoneNotFound is returned for a milestone index outside the project
	ErrMilestoneNotFound = errors.New("milestone not found")
	// ErrInvalidProject is returned for malformed project input other than the schedule
	ErrInvalidProject = errors.New("invalid project")
)

// Error wraps one of the sentinel errors above with the project context it
// was raised for
type Error struct {
	Kind      error
	Message   string
	ProjectID uint64
}

// NewError creates an Error of the given kind
func NewError(
	kind error,
	projectID uint64,
	format string,
	args ...any,
) *Error {
	return &Error{
		Kind:      kind,
		ProjectID: projectID,
		Message:   fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	if e.ProjectID == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: project %d: %s", e.Kind, e.ProjectID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// IsPrecondition returns true if the error is a deterministic precondition
// failure from the error taxonomy, as opposed to an internal storage error
func IsPrecondition(err error) bool {
	for _, kind := range []error{
		ErrUnauthorized,
		ErrInvalidSchedule,
		ErrInvalidState,
		ErrExpired,
		ErrAlreadyVoted,
		ErrConsensusNotReached,
		ErrTransferFailed,
		ErrProjectNotFound,
		ErrMilestoneNotFound,
		ErrInvalidProject,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
