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

// Package metadata implements the relational store for project, vote,
// outbox, treasury and role data on top of gorm.
package metadata

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/barangay/database/models"
	"github.com/blinklabs-io/barangay/database/types"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const (
	BackendSqlite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMysql    = "mysql"

	sqliteFileName = "metadata.sqlite"
)

type MetadataStore struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	timerVacuum  *time.Timer
	backend      string
	dataDir      string
	dsn          string
	timerMutex   sync.Mutex
	vacuumWG     sync.WaitGroup
	closed       bool
}

type MetadataStoreOptionFunc func(*MetadataStore)

func WithLogger(logger *slog.Logger) MetadataStoreOptionFunc {
	return func(m *MetadataStore) {
		m.logger = logger
	}
}

func WithPromRegistry(
	registry prometheus.Registerer,
) MetadataStoreOptionFunc {
	return func(m *MetadataStore) {
		m.promRegistry = registry
	}
}

// WithDataDir sets the directory for the sqlite database file. An empty
// data dir selects an in-memory database
func WithDataDir(dataDir string) MetadataStoreOptionFunc {
	return func(m *MetadataStore) {
		m.dataDir = dataDir
	}
}

// WithBackend selects the database engine: sqlite (default), postgres or mysql
func WithBackend(backend string) MetadataStoreOptionFunc {
	return func(m *MetadataStore) {
		m.backend = backend
	}
}

// WithDsn sets the connection string for the postgres and mysql backends
func WithDsn(dsn string) MetadataStoreOptionFunc {
	return func(m *MetadataStore) {
		m.dsn = dsn
	}
}

func New(opts ...MetadataStoreOptionFunc) (*MetadataStore, error) {
	d := &MetadataStore{
		backend: BackendSqlite,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	dialector, err := d.dialector()
	if err != nil {
		return nil, err
	}
	metadataDb, err := gorm.Open(
		dialector,
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open %s metadata database: %w", d.backend, err)
	}
	d.db = metadataDb
	if err := d.init(); err != nil {
		// Return the store for cleanup along with the error
		return d, err
	}
	return d, nil
}

func (d *MetadataStore) dialector() (gorm.Dialector, error) {
	switch d.backend {
	case BackendSqlite, "":
		if d.dataDir == "" {
			// Each in-memory store gets its own named database. The shared cache
			// keeps it alive across pooled connections
			return sqlite.Open(
				fmt.Sprintf(
					"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)",
					uuid.NewString(),
				),
			), nil
		}
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(d.dataDir, sqliteFileName)
		// WAL journal mode, disable sync on write, increase cache size to 50MB (from 2MB)
		metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)&_pragma=busy_timeout(5000)"
		return sqlite.Open(
			fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
		), nil
	case BackendPostgres:
		if strings.TrimSpace(d.dsn) == "" {
			return nil, errors.New("postgres metadata backend requires a DSN")
		}
		return postgres.Open(d.dsn), nil
	case BackendMysql:
		if strings.TrimSpace(d.dsn) == "" {
			return nil, errors.New("mysql metadata backend requires a DSN")
		}
		return mysql.Open(d.dsn), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s", d.backend)
	}
}

func (d *MetadataStore) init() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	switch {
	case d.backend == BackendSqlite && d.dataDir == "":
		// A single connection keeps every reader and writer on the same
		// in-memory database
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	case d.backend == BackendSqlite:
		sqlDB.SetMaxOpenConns(8)
	default:
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if d.promRegistry != nil {
		d.registerMetrics()
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		d.logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := d.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	// The custodial account always exists
	account := &models.TreasuryAccount{}
	if result := d.db.FirstOrCreate(account, models.TreasuryAccount{ID: models.TreasuryAccountID}); result.Error != nil {
		return fmt.Errorf("create treasury account: %w", result.Error)
	}
	if d.backend == BackendSqlite && d.dataDir != "" {
		d.scheduleDailyVacuum()
	}
	return nil
}

func (d *MetadataStore) registerMetrics() {
	labels := prometheus.Labels{"backend": d.backend}
	d.promRegistry.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "barangay_metadata_open_connections",
				Help:        "open connections to the metadata database",
				ConstLabels: labels,
			},
			func() float64 {
				sqlDB, err := d.db.DB()
				if err != nil {
					return 0
				}
				return float64(sqlDB.Stats().OpenConnections)
			},
		),
	)
}

func (d *MetadataStore) runVacuum() error {
	d.timerMutex.Lock()
	if d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	// Track this vacuum operation while we know the store is open
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()
	return d.DB().Exec("VACUUM").Error
}

func (d *MetadataStore) scheduleDailyVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed {
		return
	}
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	f := func() {
		d.logger.Debug(
			"running vacuum on sqlite metadata database",
			"component", "database",
		)
		// schedule next run
		defer d.scheduleDailyVacuum()
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in metadata store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(24*time.Hour, f)
}

// Backend returns the configured database engine name
func (d *MetadataStore) Backend() string {
	return d.backend
}

// DB returns the database handle
func (d *MetadataStore) DB() *gorm.DB {
	return d.db
}

// Transaction begins a new transaction and returns its handle
func (d *MetadataStore) Transaction() *gorm.DB {
	return d.DB().Begin()
}

func (d *MetadataStore) Close() error {
	d.timerMutex.Lock()
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()
	// Wait for any in-flight vacuum operations to complete
	d.vacuumWG.Wait()
	sqlDB, err := d.DB().DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

// conn returns the transaction handle if one was provided, or the plain
// database handle otherwise
func (d *MetadataStore) conn(txn *gorm.DB) *gorm.DB {
	if txn == nil {
		return d.DB()
	}
	return txn
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Fallback for drivers that do not translate errors
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}

func translateError(err error) error {
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %w", types.ErrDuplicateKey, err)
	}
	return err
}
