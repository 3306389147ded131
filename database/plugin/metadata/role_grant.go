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

package metadata

import (
	"errors"

	"github.com/blinklabs-io/barangay/database/models"
	"gorm.io/gorm"
)

// GetRoleGrant returns the grant of a role to a principal, or nil if none exists
func (d *MetadataStore) GetRoleGrant(
	role string,
	principal string,
	txn *gorm.DB,
) (*models.RoleGrant, error) {
	ret := &models.RoleGrant{}
	result := d.conn(txn).
		Where("role = ? AND principal = ?", role, principal).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

func (d *MetadataStore) AddRoleGrant(
	grant *models.RoleGrant,
	txn *gorm.DB,
) error {
	if result := d.conn(txn).Create(grant); result.Error != nil {
		return translateError(result.Error)
	}
	return nil
}

// DeleteRoleGrant removes a grant and reports whether one existed
func (d *MetadataStore) DeleteRoleGrant(
	role string,
	principal string,
	txn *gorm.DB,
) (bool, error) {
	result := d.conn(txn).
		Where("role = ? AND principal = ?", role, principal).
		Delete(&models.RoleGrant{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetRoleGrants returns grants ordered by role and principal. An empty role
// returns all grants
func (d *MetadataStore) GetRoleGrants(
	role string,
	txn *gorm.DB,
) ([]models.RoleGrant, error) {
	var ret []models.RoleGrant
	query := d.conn(txn).Model(&models.RoleGrant{})
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if result := query.Order("role, principal").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
