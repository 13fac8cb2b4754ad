// Package timescaledb records every fetch in a postgres table, promoted to a
// TimescaleDB hypertable when the extension is available.
package timescaledb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/database"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	createExtensionSQL  = `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE`
	createHypertableSQL = `SELECT create_hypertable('fluid_fetches', 'fetched_at', if_not_exists => TRUE, migrate_data => TRUE)`
)

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// StartStorageEngine creates a goroutine loop to receive snapshots and send
// them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- feed.Snapshot {
	t.logger.Info("starting TimescaleDB storage engine...")
	snapshotChan := make(chan feed.Snapshot, 10)
	wg.Add(1)
	go storage.ProcessSnapshots(ctx, wg, snapshotChan, func(s feed.Snapshot) error {
		return t.StoreSnapshot(ctx, s)
	}, "timescaledb", t.logger)
	return snapshotChan
}

// StoreSnapshot stores one fetch in TimescaleDB
func (t *Storage) StoreSnapshot(ctx context.Context, s feed.Snapshot) error {
	row, err := database.NewFetchRecord(s)
	if err != nil {
		return err
	}
	if err := t.TimescaleDBConn.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("could not store snapshot %d: %w", s.Seq, err)
	}
	return nil
}

// Recent returns up to limit fetches, newest first
func (t *Storage) Recent(ctx context.Context, limit int) ([]feed.Record, error) {
	var rows []database.FetchRecord
	if err := t.TimescaleDBConn.WithContext(ctx).Order("fetched_at DESC, seq DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error querying database for fetch history: %w", err)
	}

	records := make([]feed.Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.Record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	var err error
	t := Storage{logger: logger.Named("timescaledb")}

	t.TimescaleDBConn, err = database.CreateConnection(connectionString, t.logger)
	if err != nil {
		return nil, err
	}

	t.logger.Info("migrating fetch table...")
	if err := t.TimescaleDBConn.WithContext(ctx).AutoMigrate(&database.FetchRecord{}); err != nil {
		return nil, fmt.Errorf("could not create fetch table: %w", err)
	}

	// Plain postgres works too; the hypertable only changes how history is partitioned.
	t.logger.Info("creating TimescaleDB extension...")
	if err := t.TimescaleDBConn.WithContext(ctx).Exec(createExtensionSQL).Error; err != nil {
		t.logger.Warnf("TimescaleDB extension unavailable, keeping a plain table: %v", err)
		return &t, nil
	}

	t.logger.Info("creating hypertable...")
	if err := t.TimescaleDBConn.WithContext(ctx).Exec(createHypertableSQL).Error; err != nil {
		t.logger.Warnf("could not create hypertable: %v", err)
	}

	return &t, nil
}

// CheckHealth pings the database and runs a trivial query
func (t *Storage) CheckHealth(ctx context.Context) *storage.Health {
	health := &storage.Health{
		LastCheck: time.Now(),
		Status:    storage.StatusHealthy,
		Message:   "TimescaleDB connection active",
	}

	if t.TimescaleDBConn == nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "No database connection"
		health.Error = "TimescaleDB connection is nil"
		return health
	}

	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Failed to get underlying database connection"
		health.Error = err.Error()
		return health
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Database ping failed"
		health.Error = err.Error()
		return health
	}

	var result int
	if err := t.TimescaleDBConn.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Database query test failed"
		health.Error = err.Error()
		return health
	}

	health.Message = "TimescaleDB operational - ping: OK, query test: OK"
	return health
}

// Close closes the underlying connection pool
func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
