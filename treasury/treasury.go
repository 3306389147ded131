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

// Package treasury implements the fund custodian: a single-asset balance
// that pays out project releases and records every transfer.
package treasury

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/blinklabs-io/barangay/database"
	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/database/types"
	"github.com/blinklabs-io/barangay/project"
	"github.com/prometheus/client_golang/prometheus"
)

type ReleaseKind string

const (
	ReleaseKindAdvance   ReleaseKind = models.ReleaseKindAdvance
	ReleaseKindMilestone ReleaseKind = models.ReleaseKindMilestone
)

var ErrInvalidDeposit = errors.New("invalid deposit")

// ReleaseRequest describes one transfer out of the custodian
type ReleaseRequest struct {
	MilestoneIndex *uint32
	Kind           ReleaseKind
	Recipient      string
	ProjectID      uint64
	Amount         uint64
	Category       project.Category
}

// Custodian is the fund release boundary consumed by the lifecycle engine.
// Release runs inside the caller's transaction so that a failed release or a
// later failure in the same operation leaves no trace
type Custodian interface {
	Release(txn *database.Txn, req ReleaseRequest) error
	TotalReleased(projectID uint64) (uint64, error)
}

// Release is a recorded transfer
type Release struct {
	CreatedAt      time.Time        `json:"createdAt"`
	MilestoneIndex *uint32          `json:"milestoneIndex,omitempty"`
	Kind           ReleaseKind      `json:"kind"`
	Recipient      string           `json:"recipient"`
	ProjectID      uint64           `json:"projectId"`
	Amount         uint64           `json:"amount"`
	Category       project.Category `json:"category"`
}

// Summary is a snapshot of the custodial account
type Summary struct {
	Balance        uint64 `json:"balance"`
	TotalDeposited uint64 `json:"totalDeposited"`
	TotalReleased  uint64 `json:"totalReleased"`
}

type TreasuryConfig struct {
	Database     *database.Database
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Clock        func() time.Time
}

type Treasury struct {
	config  TreasuryConfig
	metrics treasuryMetrics
}

func NewTreasury(cfg TreasuryConfig) *Treasury {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "treasury")
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	t := &Treasury{
		config: cfg,
	}
	if cfg.PromRegistry != nil {
		t.metrics.init(cfg.PromRegistry, t.balanceGauge)
	}
	return t
}

func (t *Treasury) now() time.Time {
	return t.config.Clock().UTC()
}

// Release transfers an amount to a recipient. It fails with
// project.ErrTransferFailed when the balance cannot cover the amount
func (t *Treasury) Release(txn *database.Txn, req ReleaseRequest) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	if req.Amount == 0 {
		return project.NewError(project.ErrTransferFailed, req.ProjectID, "release amount is zero")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return project.NewError(project.ErrTransferFailed, req.ProjectID, "release has no recipient")
	}
	db := t.config.Database
	account, err := db.TreasuryAccount(txn)
	if err != nil {
		return err
	}
	if uint64(account.Balance) < req.Amount {
		t.config.Logger.Debug(
			"insufficient balance for release",
			"project_id", req.ProjectID,
			"amount", req.Amount,
			"balance", uint64(account.Balance),
		)
		return project.NewError(
			project.ErrTransferFailed,
			req.ProjectID,
			"insufficient treasury balance: have %d, need %d",
			uint64(account.Balance),
			req.Amount,
		)
	}
	account.Balance -= types.Uint64(req.Amount)
	account.TotalReleased += types.Uint64(req.Amount)
	if err := db.TreasurySetAccount(account, txn); err != nil {
		return err
	}
	return db.TreasuryAddRelease(
		&models.TreasuryRelease{
			ProjectID:      req.ProjectID,
			Kind:           string(req.Kind),
			MilestoneIndex: req.MilestoneIndex,
			Recipient:      req.Recipient,
			Amount:         types.Uint64(req.Amount),
			Category:       uint8(req.Category),
			CreatedAt:      t.now(),
		},
		txn,
	)
}

// Deposit adds funds to the custodial balance and returns the new balance
func (t *Treasury) Deposit(
	ctx context.Context,
	depositor string,
	amount uint64,
) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, errors.Join(ErrInvalidDeposit, errors.New("amount must be positive"))
	}
	db := t.config.Database
	var balance uint64
	err := db.Update(func(txn *database.Txn) error {
		account, err := db.TreasuryAccount(txn)
		if err != nil {
			return err
		}
		if uint64(account.Balance) > math.MaxUint64-amount {
			return errors.Join(ErrInvalidDeposit, errors.New("balance would overflow"))
		}
		now := t.now()
		account.Balance += types.Uint64(amount)
		account.TotalDeposited += types.Uint64(amount)
		if err := db.TreasurySetAccount(account, txn); err != nil {
			return err
		}
		if err := db.TreasuryAddDeposit(depositor, amount, now, txn); err != nil {
			return err
		}
		balance = uint64(account.Balance)
		_, err = db.OutboxAppend(
			project.EventTypeTreasuryDeposited,
			0,
			project.TreasuryDepositedEvent{
				Depositor: depositor,
				Amount:    amount,
				Balance:   balance,
			},
			now,
			txn,
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	t.metrics.deposited(amount)
	t.config.Logger.Info(
		"deposit received",
		"depositor", depositor,
		"amount", amount,
		"balance", balance,
	)
	return balance, nil
}

// Balance returns the current account summary
func (t *Treasury) Balance(ctx context.Context) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	account, err := t.config.Database.TreasuryAccount(nil)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Balance:        uint64(account.Balance),
		TotalDeposited: uint64(account.TotalDeposited),
		TotalReleased:  uint64(account.TotalReleased),
	}, nil
}

// TotalReleased returns the sum of all releases for a project
func (t *Treasury) TotalReleased(projectID uint64) (uint64, error) {
	releases, err := t.ListReleases(projectID)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, r := range releases {
		total += r.Amount
	}
	return total, nil
}

// TotalReleasedByCategory sums releases across all projects per category
func (t *Treasury) TotalReleasedByCategory() (map[project.Category]uint64, error) {
	releases, err := t.ListReleases(0)
	if err != nil {
		return nil, err
	}
	ret := make(map[project.Category]uint64)
	for _, r := range releases {
		ret[r.Category] += r.Amount
	}
	return ret, nil
}

// ListReleases returns recorded releases in order. A zero project ID returns
// releases for all projects
func (t *Treasury) ListReleases(projectID uint64) ([]Release, error) {
	rows, err := t.config.Database.TreasuryReleases(projectID, nil)
	if err != nil {
		return nil, err
	}
	ret := make([]Release, 0, len(rows))
	for _, row := range rows {
		ret = append(
			ret,
			Release{
				ProjectID:      row.ProjectID,
				Kind:           ReleaseKind(row.Kind),
				MilestoneIndex: row.MilestoneIndex,
				Recipient:      row.Recipient,
				Amount:         uint64(row.Amount),
				Category:       project.Category(row.Category),
				CreatedAt:      row.CreatedAt.UTC(),
			},
		)
	}
	return ret, nil
}

func (t *Treasury) balanceGauge() float64 {
	summary, err := t.Balance(context.Background())
	if err != nil {
		return 0
	}
	return float64(summary.Balance)
}
