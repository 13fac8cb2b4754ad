// Package sqlite keeps a local history of fetches in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/storage"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS fetches (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	fetched_at TEXT NOT NULL,
	ok INTEGER NOT NULL,
	error TEXT,
	raw_count INTEGER NOT NULL,
	interval_minutes INTEGER NOT NULL,
	horizon_hours INTEGER NOT NULL,
	total REAL NOT NULL,
	samples TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS fetches_fetched_at ON fetches(fetched_at);
`

// Storage holds the connection for a SQLite fetch history backend
type Storage struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// New opens (and if needed initializes) the history database at path
func New(ctx context.Context, path string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the processor and history reads
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create fetches table: %w", err)
	}

	return &Storage{db: db, logger: logger.Named("sqlite")}, nil
}

// StartStorageEngine creates a goroutine loop to receive snapshots and
// record them in the history table
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- feed.Snapshot {
	s.logger.Info("starting SQLite storage engine...")
	snapshotChan := make(chan feed.Snapshot, 10)
	wg.Add(1)
	go storage.ProcessSnapshots(ctx, wg, snapshotChan, func(snap feed.Snapshot) error {
		return s.StoreSnapshot(ctx, snap)
	}, "sqlite", s.logger)
	return snapshotChan
}

// StoreSnapshot inserts one fetch
func (s *Storage) StoreSnapshot(ctx context.Context, snap feed.Snapshot) error {
	r := snap.Record()
	values, err := json.Marshal(r.Values)
	if err != nil {
		return fmt.Errorf("could not encode samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fetches (id, seq, fetched_at, ok, error, raw_count, interval_minutes, horizon_hours, total, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, int64(r.Seq), r.FetchedAt.UTC().Format(time.RFC3339Nano), r.OK, r.Error, r.RawCount,
		r.IntervalMinutes, r.HorizonHours, snap.Buffer.Total(), string(values))
	if err != nil {
		return fmt.Errorf("could not store snapshot %d: %w", r.Seq, err)
	}
	return nil
}

// Recent returns up to limit fetches, newest first
func (s *Storage) Recent(ctx context.Context, limit int) ([]feed.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, fetched_at, ok, error, raw_count, interval_minutes, horizon_hours, samples
		FROM fetches ORDER BY fetched_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query fetch history: %w", err)
	}
	defer rows.Close()

	records := []feed.Record{}
	for rows.Next() {
		var r feed.Record
		var seq int64
		var fetchedAt, values string
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &seq, &fetchedAt, &r.OK, &errText, &r.RawCount,
			&r.IntervalMinutes, &r.HorizonHours, &values); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.Error = errText.String
		if r.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
			return nil, fmt.Errorf("fetch %s: bad timestamp: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
			return nil, fmt.Errorf("fetch %s: bad samples: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CheckHealth pings the database
func (s *Storage) CheckHealth(ctx context.Context) *storage.Health {
	health := &storage.Health{LastCheck: time.Now(), Status: storage.StatusHealthy, Message: "SQLite operational"}
	if err := s.db.PingContext(ctx); err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Database ping failed"
		health.Error = err.Error()
	}
	return health
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
