package managers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/storage"
	"github.com/chrissnell/fluidwatch/internal/storage/redis"
	"github.com/chrissnell/fluidwatch/internal/storage/sqlite"
	"github.com/chrissnell/fluidwatch/internal/storage/timescaledb"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"go.uber.org/zap"
)

// healthCheckInterval is how often each backend's connection is checked
const healthCheckInterval = time.Minute

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines             []StorageEngine
	SnapshotDistributor chan feed.Snapshot
	Health              *storage.HealthManager

	history controllers.HistoryReader
	closers []io.Closer
	cancel  context.CancelFunc
	logger  *zap.SugaredLogger
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing snapshots to the engine
type StorageEngine struct {
	Name   string
	Engine storage.StorageEngineInterface
	C      chan<- feed.Snapshot
}

// engine is what every backend package provides
type engine interface {
	storage.StorageEngineInterface
	storage.HealthChecker
	io.Closer
}

// NewStorageManager creates a StorageManager object, populated with all configured StorageEngines.
// On error every backend already opened is stopped and closed.
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &StorageManager{
		SnapshotDistributor: make(chan feed.Snapshot, 20),
		Health:              storage.NewHealthManager(),
		logger:              logger.Named("storage"),
		cancel:              cancel,
	}
	if err := s.addConfigured(ctx, wg, c); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.logger.Warnw("error closing storage backends", "error", cerr)
		}
		return nil, err
	}

	// Start our snapshot distributor to distribute fetched snapshots to storage backends
	wg.Add(1)
	go s.startSnapshotDistributor(ctx, wg)

	return s, nil
}

// addConfigured opens and starts each configured backend in turn
func (s *StorageManager) addConfigured(ctx context.Context, wg *sync.WaitGroup, c config.StorageData) error {
	// Check the configuration for the supported storage backends and enable them if found
	if c.SQLite != nil {
		e, err := sqlite.New(ctx, c.SQLite.Path, s.logger)
		if err != nil {
			return fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "sqlite", e)
		s.history = e
	}

	if c.Postgres != nil {
		e, err := timescaledb.New(ctx, c.Postgres.ConnectionString, s.logger)
		if err != nil {
			return fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "timescaledb", e)
		if s.history == nil {
			s.history = e
		}
	}

	if c.Redis != nil {
		ttl, _ := time.ParseDuration(c.Redis.TTL)
		e, err := redis.New(ctx, redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Key:      c.Redis.Key,
			TTL:      ttl,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("could not add redis storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "redis", e)
	}

	return nil
}

// AddEngine starts e and adds it to the fan-out
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, name string, e engine) {
	s.Engines = append(s.Engines, StorageEngine{
		Name:   name,
		Engine: e,
		C:      e.StartStorageEngine(ctx, wg),
	})
	s.closers = append(s.closers, e)
	storage.StartHealthMonitor(ctx, s.Health, name, e, healthCheckInterval, s.logger)
}

// GetSnapshotDistributor returns the snapshot distributor channel
func (s *StorageManager) GetSnapshotDistributor() chan<- feed.Snapshot {
	return s.SnapshotDistributor
}

// History returns the backend used to serve past fetches, or nil when no
// history backend is configured
func (s *StorageManager) History() controllers.HistoryReader {
	return s.history
}

// Close stops the engines and closes every backend connection
func (s *StorageManager) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startSnapshotDistributor receives snapshots from the refresher and fans them out to the various
// storage backends
func (s *StorageManager) startSnapshotDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case snap := <-s.SnapshotDistributor:
			// With no storage engines configured the snapshot is discarded
			for _, e := range s.Engines {
				select {
				case e.C <- snap:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
