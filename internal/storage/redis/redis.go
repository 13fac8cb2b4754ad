// Package redis shares the latest snapshot through a redis key so that other
// processes (the `view` command, a second dashboard) can read it without
// polling the device.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/storage"
	"github.com/go-redis/redis/v8"
	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// ErrNoSnapshot is returned by Load when nothing has been shared yet.
var ErrNoSnapshot = errors.New("no snapshot shared")

// Options configures the redis connection and key
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// Storage publishes each snapshot under a single key
type Storage struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// New connects to redis and verifies the connection
func New(ctx context.Context, opts Options, logger *zap.SugaredLogger) (*Storage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		MaxRetries: 3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", opts.Addr, err)
	}

	return &Storage{
		client: rdb,
		key:    opts.Key,
		ttl:    opts.TTL,
		logger: logger.Named("redis"),
	}, nil
}

// StartStorageEngine creates a goroutine loop to receive snapshots and share them
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- feed.Snapshot {
	s.logger.Infow("starting redis storage engine...", "key", s.key)
	snapshotChan := make(chan feed.Snapshot, 10)
	wg.Add(1)
	go storage.ProcessSnapshots(ctx, wg, snapshotChan, func(snap feed.Snapshot) error {
		return s.Save(ctx, snap)
	}, "redis", s.logger)
	return snapshotChan
}

// Save replaces the shared snapshot
func (s *Storage) Save(ctx context.Context, snap feed.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

// Load reads the shared snapshot
func (s *Storage) Load(ctx context.Context) (feed.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return feed.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return feed.Snapshot{}, err
	}
	return Decode(data)
}

// CheckHealth pings redis
func (s *Storage) CheckHealth(ctx context.Context) *storage.Health {
	health := &storage.Health{LastCheck: time.Now(), Status: storage.StatusHealthy, Message: "redis operational"}
	if err := s.client.Ping(ctx).Err(); err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "redis ping failed"
		health.Error = err.Error()
	}
	return health
}

// Close closes the client
func (s *Storage) Close() error {
	return s.client.Close()
}

// Encode serializes a snapshot as snappy-compressed msgpack
func Encode(snap feed.Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(snap.Record())
	if err != nil {
		return nil, fmt.Errorf("could not encode snapshot: %w", err)
	}
	return snappy.Encode(nil, b), nil
}

// Decode reverses Encode
func Decode(data []byte) (feed.Snapshot, error) {
	b, err := snappy.Decode(nil, data)
	if err != nil {
		return feed.Snapshot{}, fmt.Errorf("could not decompress snapshot: %w", err)
	}
	var r feed.Record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return feed.Snapshot{}, fmt.Errorf("could not decode snapshot: %w", err)
	}
	return r.Snapshot(), nil
}
