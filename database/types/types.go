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

package types

import (
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// Uint64 stores an asset amount as a decimal string so that the full uint64
// range survives databases with signed 64-bit integers
type Uint64 uint64

func (u Uint64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

func (u *Uint64) Scan(val any) error {
	var v string
	switch tmp := val.(type) {
	case string:
		v = tmp
	case []byte:
		v = string(tmp)
	case int64:
		if tmp < 0 {
			return fmt.Errorf("negative value for Uint64: %d", tmp)
		}
		*u = Uint64(tmp)
		return nil
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	tmpUint, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64(tmpUint)
	return nil
}

// GormDataType keeps the column textual on every backend
func (Uint64) GormDataType() string {
	return "string"
}

var ErrBlobKeyNotFound = errors.New("blob key not found")

var ErrNilTxn = errors.New("nil transaction")

var ErrNoStoreAvailable = errors.New("no store available")

var ErrReadOnlyTxn = errors.New("write attempted in read-only transaction")

// ErrDuplicateKey is returned when an insert violates a unique constraint
var ErrDuplicateKey = errors.New("duplicate key")

const (
	JournalEventKeyPrefix   = "je"
	JournalProjectKeyPrefix = "jp"
)

func Uint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

// JournalEventKey returns the key for a journal entry. Keys sort by sequence
func JournalEventKey(sequence uint64) []byte {
	key := []byte(JournalEventKeyPrefix)
	return append(key, Uint64ToBytes(sequence)...)
}

// JournalProjectPrefix returns the index prefix for all journal entries of a project
func JournalProjectPrefix(projectID uint64) []byte {
	key := []byte(JournalProjectKeyPrefix)
	return append(key, Uint64ToBytes(projectID)...)
}

// JournalProjectKey returns the per-project index key for a journal entry
func JournalProjectKey(projectID uint64, sequence uint64) []byte {
	return append(JournalProjectPrefix(projectID), Uint64ToBytes(sequence)...)
}

// SequenceFromKey extracts the trailing sequence number from a journal key
func SequenceFromKey(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("journal key too short: %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}
