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

// Package lifecycle implements the project registry, the milestone state
// machine and the vote ledger. Every state change runs as one serialized
// database transaction that also carries the fund release and the outbox
// event, so an operation either applies completely or not at all.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/project"
	"github.com/blinklabs-io/barangay/roles"
	"github.com/blinklabs-io/barangay/treasury"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/blinklabs-io/barangay/lifecycle"

type EngineConfig struct {
	Database     *database.Database
	Roles        roles.Oracle
	Custodian    treasury.Custodian
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Clock supplies the current time for deadline checks
	Clock func() time.Time
	// Notify is called after every committed state change
	Notify func()
}

type Engine struct {
	config  EngineConfig
	tracer  trace.Tracer
	metrics engineMetrics
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, errors.New("lifecycle engine requires a database")
	}
	if cfg.Roles == nil {
		return nil, errors.New("lifecycle engine requires a role oracle")
	}
	if cfg.Custodian == nil {
		return nil, errors.New("lifecycle engine requires a fund custodian")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "lifecycle")
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	e := &Engine{
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
	if cfg.PromRegistry != nil {
		e.metrics.init(cfg.PromRegistry)
	}
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.config.Clock().UTC()
}

func (e *Engine) notify() {
	if e.config.Notify != nil {
		e.config.Notify()
	}
}

// requireRole fails with project.ErrUnauthorized unless the caller holds the role
func (e *Engine) requireRole(
	ctx context.Context,
	role roles.Role,
	caller string,
	projectID uint64,
) error {
	ok, err := e.config.Roles.HasRole(ctx, role, caller)
	if err != nil {
		return fmt.Errorf("role check: %w", err)
	}
	if !ok {
		return project.NewError(
			project.ErrUnauthorized,
			projectID,
			"%q does not hold the %s role",
			caller,
			role,
		)
	}
	return nil
}

// finish records the outcome of an operation on its span, logs rejections
// and counts them
func (e *Engine) finish(span trace.Span, operation string, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.rejected(operation, err)
	if project.IsPrecondition(err) {
		e.config.Logger.Debug(
			"operation rejected",
			"operation", operation,
			"error", err,
		)
		return
	}
	e.config.Logger.Error(
		"operation failed",
		"operation", operation,
		"error", err,
	)
}

// CreateProject validates and stores a new project and releases its advance
// payment to the vendor. Only officials may create projects. When the input
// names no proposer, the caller is recorded as proposer
func (e *Engine) CreateProject(
	ctx context.Context,
	caller string,
	in project.NewProject,
) (ret *project.Project, err error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.CreateProject")
	defer func() { e.finish(span, "create_project", err) }()

	if err := e.requireRole(ctx, roles.RoleOfficial, caller, 0); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Proposer) == "" {
		in.Proposer = caller
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	db := e.config.Database
	err = db.Update(func(txn *database.Txn) error {
		id, err := db.ProjectNextID(txn)
		if err != nil {
			return fmt.Errorf("allocate project id: %w", err)
		}
		now := e.now()
		p := in.Build(id, now)
		if err := db.ProjectCreate(p, txn); err != nil {
			return fmt.Errorf("store project: %w", err)
		}
		if p.AdvancePayment > 0 {
			err := e.config.Custodian.Release(
				txn,
				treasury.ReleaseRequest{
					ProjectID: p.ID,
					Kind:      treasury.ReleaseKindAdvance,
					Recipient: p.Vendor,
					Amount:    p.AdvancePayment,
					Category:  p.Category,
				},
			)
			if err != nil {
				return err
			}
		}
		_, err = db.OutboxAppend(
			project.EventTypeProjectCreated,
			p.ID,
			project.ProjectCreatedEvent{
				ProjectID:      p.ID,
				Proposer:       p.Proposer,
				Vendor:         p.Vendor,
				Budget:         p.Budget,
				Category:       p.Category,
				StartDate:      p.StartDate,
				EndDate:        p.EndDate,
				MetadataURI:    p.MetadataURI,
				AdvancePayment: p.AdvancePayment,
			},
			now,
			txn,
		)
		if err != nil {
			return err
		}
		ret = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("project.id", int64(ret.ID))) //nolint:gosec // ids stay far below MaxInt64
	e.metrics.projectCreated(ret.AdvancePayment)
	e.config.Logger.Info(
		"project created",
		"project_id", ret.ID,
		"proposer", ret.Proposer,
		"vendor", ret.Vendor,
		"budget", ret.Budget,
		"advance_payment", ret.AdvancePayment,
		"milestones", len(ret.Milestones),
	)
	e.notify()
	return ret, nil
}

// loadCurrent loads a project and its active milestone within the transaction
func (e *Engine) loadCurrent(
	projectID uint64,
	txn *database.Txn,
) (*project.Project, *project.Milestone, error) {
	p, err := e.config.Database.ProjectGet(projectID, txn)
	if err != nil {
		return nil, nil, err
	}
	cur := p.Current()
	if cur == nil {
		return nil, nil, project.NewError(
			project.ErrInvalidState,
			projectID,
			"project has no active milestone",
		)
	}
	return p, cur, nil
}

// SubmitMilestone records the vendor's evidence for the current milestone and
// opens it for verification
func (e *Engine) SubmitMilestone(
	ctx context.Context,
	caller string,
	projectID uint64,
	evidenceURI string,
) (ret *project.Project, err error) {
	ctx, span := e.tracer.Start(
		ctx,
		"lifecycle.SubmitMilestone",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))), //nolint:gosec // ids stay far below MaxInt64
	)
	defer func() { e.finish(span, "submit_milestone", err) }()

	if err := e.requireRole(ctx, roles.RoleVendor, caller, projectID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(evidenceURI) == "" {
		return nil, project.NewError(project.ErrInvalidProject, projectID, "evidence URI is required")
	}
	db := e.config.Database
	var index uint32
	err = db.Update(func(txn *database.Txn) error {
		p, cur, err := e.loadCurrent(projectID, txn)
		if err != nil {
			return err
		}
		if p.Vendor != caller {
			return project.NewError(
				project.ErrUnauthorized,
				projectID,
				"%q is not the project vendor",
				caller,
			)
		}
		if cur.Status != project.MilestoneStatusPending {
			return project.NewError(
				project.ErrInvalidState,
				projectID,
				"milestone %d is %s, expected %s",
				cur.Index,
				cur.Status,
				project.MilestoneStatusPending,
			)
		}
		now := e.now()
		if p.Expired(now) {
			return project.NewError(
				project.ErrExpired,
				projectID,
				"project ended at %s",
				p.EndDate.Format(time.RFC3339),
			)
		}
		cur.MetadataURI = evidenceURI
		cur.Status = project.MilestoneStatusForVerification
		if err := db.ProjectUpdate(p, cur, txn); err != nil {
			return err
		}
		_, err = db.OutboxAppend(
			project.EventTypeMilestoneSubmitted,
			p.ID,
			project.MilestoneSubmittedEvent{
				ProjectID:      p.ID,
				MilestoneIndex: cur.Index,
				Vendor:         caller,
				EvidenceURI:    evidenceURI,
			},
			now,
			txn,
		)
		if err != nil {
			return err
		}
		index = cur.Index
		ret = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.transition("submitted")
	e.config.Logger.Info(
		"milestone submitted",
		"project_id", projectID,
		"milestone", index,
		"evidence_uri", evidenceURI,
	)
	e.notify()
	return ret, nil
}

// VerifyMilestone casts the caller's vote on the current milestone. Each
// citizen may vote once per milestone
func (e *Engine) VerifyMilestone(
	ctx context.Context,
	caller string,
	projectID uint64,
	consensus bool,
) (ret *project.Project, err error) {
	ctx, span := e.tracer.Start(
		ctx,
		"lifecycle.VerifyMilestone",
		trace.WithAttributes(
			attribute.Int64("project.id", int64(projectID)), //nolint:gosec // ids stay far below MaxInt64
			attribute.Bool("vote.consensus", consensus),
		),
	)
	defer func() { e.finish(span, "verify_milestone", err) }()

	if err := e.requireRole(ctx, roles.RoleCitizen, caller, projectID); err != nil {
		return nil, err
	}
	db := e.config.Database
	var cur *project.Milestone
	err = db.Update(func(txn *database.Txn) error {
		var p *project.Project
		var err error
		p, cur, err = e.loadCurrent(projectID, txn)
		if err != nil {
			return err
		}
		if cur.Status != project.MilestoneStatusForVerification {
			return project.NewError(
				project.ErrInvalidState,
				projectID,
				"milestone %d is %s, expected %s",
				cur.Index,
				cur.Status,
				project.MilestoneStatusForVerification,
			)
		}
		now := e.now()
		if p.Expired(now) {
			return project.NewError(
				project.ErrExpired,
				projectID,
				"project ended at %s",
				p.EndDate.Format(time.RFC3339),
			)
		}
		voted, err := db.VoteExists(projectID, cur.Index, caller, txn)
		if err != nil {
			return err
		}
		if voted {
			return project.NewError(
				project.ErrAlreadyVoted,
				projectID,
				"%q already voted on milestone %d",
				caller,
				cur.Index,
			)
		}
		if err := db.VoteAdd(projectID, cur.Index, caller, consensus, now, txn); err != nil {
			return err
		}
		if consensus {
			cur.Upvotes++
		} else {
			cur.Downvotes++
		}
		if err := db.ProjectUpdate(p, cur, txn); err != nil {
			return err
		}
		_, err = db.OutboxAppend(
			project.EventTypeMilestoneVerified,
			p.ID,
			project.MilestoneVerifiedEvent{
				ProjectID:      p.ID,
				MilestoneIndex: cur.Index,
				Voter:          caller,
				Consensus:      consensus,
				Upvotes:        cur.Upvotes,
				Downvotes:      cur.Downvotes,
			},
			now,
			txn,
		)
		if err != nil {
			return err
		}
		ret = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.voted(consensus)
	e.config.Logger.Info(
		"milestone vote recorded",
		"project_id", projectID,
		"milestone", cur.Index,
		"consensus", consensus,
		"upvotes", cur.Upvotes,
		"downvotes", cur.Downvotes,
	)
	e.notify()
	return ret, nil
}

// CompleteMilestone finalizes the current milestone once quorum is reached,
// releasing its share of the budget to the vendor. A milestone with nothing
// left to pay completes without a release
func (e *Engine) CompleteMilestone(
	ctx context.Context,
	caller string,
	projectID uint64,
) (ret *project.Project, err error) {
	ctx, span := e.tracer.Start(
		ctx,
		"lifecycle.CompleteMilestone",
		trace.WithAttributes(attribute.Int64("project.id", int64(projectID))), //nolint:gosec // ids stay far below MaxInt64
	)
	defer func() { e.finish(span, "complete_milestone", err) }()

	if err := e.requireRole(ctx, roles.RoleOfficial, caller, projectID); err != nil {
		return nil, err
	}
	db := e.config.Database
	var cur *project.Milestone
	var amount uint64
	var complete bool
	err = db.Update(func(txn *database.Txn) error {
		var p *project.Project
		var err error
		p, cur, err = e.loadCurrent(projectID, txn)
		if err != nil {
			return err
		}
		if cur.Status != project.MilestoneStatusForVerification {
			return project.NewError(
				project.ErrInvalidState,
				projectID,
				"milestone %d is %s, expected %s",
				cur.Index,
				cur.Status,
				project.MilestoneStatusForVerification,
			)
		}
		if !cur.QuorumReached() {
			return project.NewError(
				project.ErrConsensusNotReached,
				projectID,
				"milestone %d has %d upvotes and %d downvotes, need a net %d",
				cur.Index,
				cur.Upvotes,
				cur.Downvotes,
				project.QuorumVotes,
			)
		}
		amount = project.MilestonePayout(p, cur.Index)
		if amount > 0 {
			idx := cur.Index
			err := e.config.Custodian.Release(
				txn,
				treasury.ReleaseRequest{
					ProjectID:      p.ID,
					Kind:           treasury.ReleaseKindMilestone,
					MilestoneIndex: &idx,
					Recipient:      p.Vendor,
					Amount:         amount,
					Category:       p.Category,
				},
			)
			if err != nil {
				return err
			}
			cur.ReleaseAmount = amount
			cur.IsReleased = true
			p.Released += amount
		}
		cur.Status = project.MilestoneStatusDone
		complete = p.IsLastMilestone(cur.Index)
		if !complete {
			p.CurrentMilestone++
		}
		if err := db.ProjectUpdate(p, cur, txn); err != nil {
			return err
		}
		_, err = db.OutboxAppend(
			project.EventTypeMilestoneCompleted,
			p.ID,
			project.MilestoneCompletedEvent{
				ProjectID:         p.ID,
				MilestoneIndex:    cur.Index,
				ReleaseAmount:     amount,
				IsProjectComplete: complete,
			},
			e.now(),
			txn,
		)
		if err != nil {
			return err
		}
		ret = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.transition("completed")
	e.metrics.released(treasury.ReleaseKindMilestone, amount)
	e.config.Logger.Info(
		"milestone completed",
		"project_id", projectID,
		"milestone", cur.Index,
		"release_amount", amount,
		"project_complete", complete,
	)
	e.notify()
	return ret, nil
}

// GetProject returns a project with its milestones
func (e *Engine) GetProject(ctx context.Context, projectID uint64) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.config.Database.ProjectGet(projectID, nil)
}

// GetMilestone returns a single milestone of a project
func (e *Engine) GetMilestone(
	ctx context.Context,
	projectID uint64,
	index uint32,
) (*project.Milestone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.config.Database.MilestoneGet(projectID, index, nil)
}

// GetProjectCount returns the number of projects created so far
func (e *Engine) GetProjectCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.config.Database.ProjectCount("", nil)
}

// HasVoted returns true if the voter already voted on the milestone
func (e *Engine) HasVoted(
	ctx context.Context,
	projectID uint64,
	index uint32,
	voter string,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.config.Database.VoteExists(projectID, index, voter, nil)
}

// ListProjects returns a page of projects and the total number matching the
// filter
func (e *Engine) ListProjects(
	ctx context.Context,
	opts database.ListOptions,
) ([]*project.Project, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	total, err := e.config.Database.ProjectCount(opts.Vendor, nil)
	if err != nil {
		return nil, 0, err
	}
	projects, err := e.config.Database.ProjectList(opts, nil)
	if err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}
