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

// Package database provides the authoritative transactional store: a
// relational metadata store for projects, votes, the outbox, treasury
// accounting and role grants, plus a badger journal of delivered events.
package database

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/barangay/database/plugin/blob/badger"
	"github.com/blinklabs-io/barangay/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	PromRegistry    prometheus.Registerer
	Logger          *slog.Logger
	DataDir         string
	MetadataBackend string
	MetadataDsn     string
	BlobCacheSize   uint64
}

type Database struct {
	logger    *slog.Logger
	blob      *badger.BlobStoreBadger
	metadata  *metadata.MetadataStore
	config    *Config
	writeLock sync.Mutex
}

// Blob returns the underling blob store instance
func (d *Database) Blob() *badger.BlobStoreBadger {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.config.DataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() *metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction covering both stores and
// returns a handle to it. Callers that change state should use Update
// instead, which serializes writers
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Update runs fn in a read-write metadata transaction while holding the
// database write lock. All state-changing operations go through here, so
// they are applied one at a time and either commit as a whole or not at all
func (d *Database) Update(fn func(*Txn) error) error {
	d.writeLock.Lock()
	defer d.writeLock.Unlock()
	txn := NewMetadataOnlyTxn(d, true)
	return txn.Do(fn)
}

// View runs fn in a read-only metadata transaction
func (d *Database) View(fn func(*Txn) error) error {
	txn := NewMetadataOnlyTxn(d, false)
	defer txn.Release()
	return fn(txn)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	// Close blob
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New creates a new database instance with optional persistence using the
// provided data directory. An empty data directory keeps everything in memory
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	db := &Database{
		logger: config.Logger,
		config: config,
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataDb, err := metadata.New(
		metadata.WithLogger(db.logger),
		metadata.WithPromRegistry(config.PromRegistry),
		metadata.WithDataDir(config.DataDir),
		metadata.WithBackend(config.MetadataBackend),
		metadata.WithDsn(config.MetadataDsn),
	)
	if err != nil {
		if metadataDb != nil {
			_ = metadataDb.Close()
		}
		return nil, err
	}
	db.metadata = metadataDb
	blobOpts := []badger.BlobStoreBadgerOptionFunc{
		badger.WithLogger(db.logger),
		badger.WithPromRegistry(config.PromRegistry),
		badger.WithDataDir(config.DataDir),
	}
	if config.BlobCacheSize > 0 {
		blobOpts = append(blobOpts, badger.WithBlockCacheSize(config.BlobCacheSize))
	}
	blobDb, err := badger.New(blobOpts...)
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	db.blob = blobDb
	return db, nil
}
