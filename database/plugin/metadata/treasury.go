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

// GetTreasuryAccount returns the custodial account
func (d *MetadataStore) GetTreasuryAccount(
	txn *gorm.DB,
) (*models.TreasuryAccount, error) {
	ret := &models.TreasuryAccount{}
	result := d.conn(txn).Where("id = ?", models.TreasuryAccountID).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrTreasuryAccountNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetTreasuryAccount writes the custodial account balances
func (d *MetadataStore) SetTreasuryAccount(
	account *models.TreasuryAccount,
	txn *gorm.DB,
) error {
	result := d.conn(txn).Save(account)
	return result.Error
}

func (d *MetadataStore) AddTreasuryDeposit(
	deposit *models.TreasuryDeposit,
	txn *gorm.DB,
) error {
	return d.conn(txn).Create(deposit).Error
}

func (d *MetadataStore) AddTreasuryRelease(
	release *models.TreasuryRelease,
	txn *gorm.DB,
) error {
	return d.conn(txn).Create(release).Error
}

// GetTreasuryReleases returns releases in creation order. A zero project ID
// returns releases for all projects
func (d *MetadataStore) GetTreasuryReleases(
	projectID uint64,
	txn *gorm.DB,
) ([]models.TreasuryRelease, error) {
	var ret []models.TreasuryRelease
	query := d.conn(txn).Model(&models.TreasuryRelease{})
	if projectID != 0 {
		query = query.Where("project_id = ?", projectID)
	}
	if result := query.Order("id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
