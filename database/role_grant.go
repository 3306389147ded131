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
	"time"

	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/database/types"
)

// RoleGranted returns true if the principal holds the role
func (d *Database) RoleGranted(role string, principal string, txn *Txn) (bool, error) {
	grant, err := d.metadata.GetRoleGrant(role, principal, metadataHandle(txn))
	if err != nil {
		return false, err
	}
	return grant != nil, nil
}

// RoleGrant grants a role to a principal. Granting an already held role is a no-op
func (d *Database) RoleGrant(
	role string,
	principal string,
	grantedBy string,
	createdAt time.Time,
	txn *Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	existing, err := d.metadata.GetRoleGrant(role, principal, txn.Metadata())
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	err = d.metadata.AddRoleGrant(
		&models.RoleGrant{
			Role:      role,
			Principal: principal,
			GrantedBy: grantedBy,
			CreatedAt: createdAt,
		},
		txn.Metadata(),
	)
	return err
}

// RoleRevoke removes a grant and reports whether it existed
func (d *Database) RoleRevoke(role string, principal string, txn *Txn) (bool, error) {
	if txn == nil {
		return false, types.ErrNilTxn
	}
	return d.metadata.DeleteRoleGrant(role, principal, txn.Metadata())
}

// RoleGrants lists grants, optionally for a single role
func (d *Database) RoleGrants(role string, txn *Txn) ([]models.RoleGrant, error) {
	return d.metadata.GetRoleGrants(role, metadataHandle(txn))
}
