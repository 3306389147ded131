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

// TreasuryAccount returns the custodial account
func (d *Database) TreasuryAccount(txn *Txn) (*models.TreasuryAccount, error) {
	return d.metadata.GetTreasuryAccount(metadataHandle(txn))
}

// TreasurySetAccount writes the custodial account
func (d *Database) TreasurySetAccount(
	account *models.TreasuryAccount,
	txn *Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	return d.metadata.SetTreasuryAccount(account, txn.Metadata())
}

// TreasuryAddDeposit records a deposit
func (d *Database) TreasuryAddDeposit(
	depositor string,
	amount uint64,
	createdAt time.Time,
	txn *Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	return d.metadata.AddTreasuryDeposit(
		&models.TreasuryDeposit{
			Depositor: depositor,
			Amount:    types.Uint64(amount),
			CreatedAt: createdAt,
		},
		txn.Metadata(),
	)
}

// TreasuryAddRelease records a release
func (d *Database) TreasuryAddRelease(
	release *models.TreasuryRelease,
	txn *Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	return d.metadata.AddTreasuryRelease(release, txn.Metadata())
}

// TreasuryReleases returns recorded releases. A zero project ID returns all releases
func (d *Database) TreasuryReleases(
	projectID uint64,
	txn *Txn,
) ([]models.TreasuryRelease, error) {
	return d.metadata.GetTreasuryReleases(projectID, metadataHandle(txn))
}
