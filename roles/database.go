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

package roles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/blinklabs-io/barangay/database"
)

// Grant is one role assignment
type Grant struct {
	CreatedAt time.Time `json:"createdAt"`
	Role      Role      `json:"role"`
	Principal string    `json:"principal"`
	GrantedBy string    `json:"grantedBy,omitempty"`
}

// DatabaseOracle answers role checks from persisted grants
type DatabaseOracle struct {
	db     *database.Database
	logger *slog.Logger
}

func NewDatabaseOracle(db *database.Database, logger *slog.Logger) *DatabaseOracle {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &DatabaseOracle{
		db:     db,
		logger: logger,
	}
}

func (o *DatabaseOracle) HasRole(
	ctx context.Context,
	role Role,
	principal string,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !role.Valid() || principal == "" {
		return false, nil
	}
	return o.db.RoleGranted(string(role), principal, nil)
}

// Grant assigns a role to a principal
func (o *DatabaseOracle) Grant(
	ctx context.Context,
	role Role,
	principal string,
	grantedBy string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrUnknownRole
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return errors.New("principal is required")
	}
	err := o.db.Update(func(txn *database.Txn) error {
		return o.db.RoleGrant(string(role), principal, grantedBy, time.Now().UTC(), txn)
	})
	if err != nil {
		return err
	}
	o.logger.Info(
		"granted role",
		"component", "roles",
		"role", role,
		"principal", principal,
		"granted_by", grantedBy,
	)
	return nil
}

// Revoke removes a role from a principal and reports whether it was held
func (o *DatabaseOracle) Revoke(
	ctx context.Context,
	role Role,
	principal string,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var existed bool
	err := o.db.Update(func(txn *database.Txn) error {
		var err error
		existed, err = o.db.RoleRevoke(string(role), principal, txn)
		return err
	})
	if err != nil {
		return false, err
	}
	if existed {
		o.logger.Info(
			"revoked role",
			"component", "roles",
			"role", role,
			"principal", principal,
		)
	}
	return existed, nil
}

// ListGrants returns grants for a role, or all grants for an empty role
func (o *DatabaseOracle) ListGrants(ctx context.Context, role Role) ([]Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := o.db.RoleGrants(string(role), nil)
	if err != nil {
		return nil, err
	}
	ret := make([]Grant, 0, len(rows))
	for _, row := range rows {
		ret = append(
			ret,
			Grant{
				Role:      Role(row.Role),
				Principal: row.Principal,
				GrantedBy: row.GrantedBy,
				CreatedAt: row.CreatedAt.UTC(),
			},
		)
	}
	return ret, nil
}
