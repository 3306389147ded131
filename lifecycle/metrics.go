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

package lifecycle

import (
	"errors"
	"strconv"

	"github.com/blinklabs-io/barangay/project"
	"github.com/blinklabs-io/barangay/treasury"
	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	projectsCreated      prometheus.Counter
	milestoneTransitions *prometheus.CounterVec
	votes                *prometheus.CounterVec
	fundsReleased        *prometheus.CounterVec
	rejections           *prometheus.CounterVec
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	m.projectsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barangay_projects_created_total",
		Help: "number of projects created",
	})
	m.milestoneTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barangay_milestone_transitions_total",
			Help: "milestone state transitions by kind",
		},
		[]string{"transition"},
	)
	m.votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barangay_milestone_votes_total",
			Help: "verification votes cast",
		},
		[]string{"consensus"},
	)
	m.fundsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barangay_funds_released_total",
			Help: "amount released to vendors",
		},
		[]string{"kind"},
	)
	m.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barangay_operation_rejections_total",
			Help: "rejected lifecycle operations by reason",
		},
		[]string{"operation", "reason"},
	)
	promRegistry.MustRegister(
		m.projectsCreated,
		m.milestoneTransitions,
		m.votes,
		m.fundsReleased,
		m.rejections,
	)
}

func (m *engineMetrics) projectCreated(advance uint64) {
	if m.projectsCreated == nil {
		return
	}
	m.projectsCreated.Inc()
	m.released(treasury.ReleaseKindAdvance, advance)
}

func (m *engineMetrics) transition(name string) {
	if m.milestoneTransitions == nil {
		return
	}
	m.milestoneTransitions.WithLabelValues(name).Inc()
}

func (m *engineMetrics) voted(consensus bool) {
	if m.votes == nil {
		return
	}
	m.milestoneTransitions.WithLabelValues("verified").Inc()
	m.votes.WithLabelValues(strconv.FormatBool(consensus)).Inc()
}

func (m *engineMetrics) released(kind treasury.ReleaseKind, amount uint64) {
	if m.fundsReleased == nil || amount == 0 {
		return
	}
	m.fundsReleased.WithLabelValues(string(kind)).Add(float64(amount))
}

func (m *engineMetrics) rejected(operation string, err error) {
	if m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(operation, rejectionReason(err)).Inc()
}

func rejectionReason(err error) string {
	var projErr *project.Error
	if errors.As(err, &projErr) {
		switch {
		case errors.Is(err, project.ErrUnauthorized):
			return "unauthorized"
		case errors.Is(err, project.ErrInvalidSchedule):
			return "invalid_schedule"
		case errors.Is(err, project.ErrInvalidState):
			return "invalid_state"
		case errors.Is(err, project.ErrExpired):
			return "expired"
		case errors.Is(err, project.ErrAlreadyVoted):
			return "already_voted"
		case errors.Is(err, project.ErrConsensusNotReached):
			return "consensus_not_reached"
		case errors.Is(err, project.ErrTransferFailed):
			return "transfer_failed"
		case errors.Is(err, project.ErrProjectNotFound),
			errors.Is(err, project.ErrMilestoneNotFound):
			return "not_found"
		case errors.Is(err, project.ErrInvalidProject):
			return "invalid_input"
		}
	}
	return "internal"
}
