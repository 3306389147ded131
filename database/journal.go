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
	"encoding/json"
	"fmt"

	"github.com/blinklabs-io/barangay/database/types"
)

// JournalAppend writes delivered events to the journal. Entries are keyed by
// sequence number, so appending the same event twice is harmless
func (d *Database) JournalAppend(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	txn := NewBlobOnlyTxn(d, true)
	return txn.Do(func(txn *Txn) error {
		for _, evt := range events {
			data, err := json.Marshal(evt)
			if err != nil {
				return fmt.Errorf("encode journal entry %d: %w", evt.Sequence, err)
			}
			if err := d.blob.Set(txn.Blob(), types.JournalEventKey(evt.Sequence), data); err != nil {
				return err
			}
			if evt.ProjectID == 0 {
				continue
			}
			if err := d.blob.Set(txn.Blob(), types.JournalProjectKey(evt.ProjectID, evt.Sequence), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// JournalList returns up to limit journal entries with a sequence of at
// least from, in sequence order
func (d *Database) JournalList(from uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}
	txn := NewBlobOnlyTxn(d, false)
	defer txn.Release()
	ret := []Event{}
	err := d.blob.Scan(
		txn.Blob(),
		[]byte(types.JournalEventKeyPrefix),
		types.JournalEventKey(from),
		false,
		func(_ []byte, val []byte) (bool, error) {
			var evt Event
			if err := json.Unmarshal(val, &evt); err != nil {
				return false, fmt.Errorf("decode journal entry: %w", err)
			}
			ret = append(ret, evt)
			return len(ret) < limit, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// JournalListProject returns up to limit journal entries for one project
// with a sequence of at least from, in sequence order
func (d *Database) JournalListProject(
	projectID uint64,
	from uint64,
	limit int,
) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}
	txn := NewBlobOnlyTxn(d, false)
	defer txn.Release()
	ret := []Event{}
	err := d.blob.Scan(
		txn.Blob(),
		types.JournalProjectPrefix(projectID),
		types.JournalProjectKey(projectID, from),
		false,
		func(key []byte, _ []byte) (bool, error) {
			seq, err := types.SequenceFromKey(key)
			if err != nil {
				return false, err
			}
			val, err := d.blob.Get(txn.Blob(), types.JournalEventKey(seq))
			if err != nil {
				return false, fmt.Errorf("journal entry %d: %w", seq, err)
			}
			var evt Event
			if err := json.Unmarshal(val, &evt); err != nil {
				return false, fmt.Errorf("decode journal entry: %w", err)
			}
			ret = append(ret, evt)
			return len(ret) < limit, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// JournalLastSequence returns the highest journaled sequence, or 0 if the
// journal is empty
func (d *Database) JournalLastSequence() (uint64, error) {
	txn := NewBlobOnlyTxn(d, false)
	defer txn.Release()
	var ret uint64
	err := d.blob.Scan(
		txn.Blob(),
		[]byte(types.JournalEventKeyPrefix),
		types.JournalEventKey(^uint64(0)),
		true,
		func(key []byte, _ []byte) (bool, error) {
			seq, err := types.SequenceFromKey(key)
			if err != nil {
				return false, err
			}
			ret = seq
			return false, nil
		},
	)
	return ret, err
}
