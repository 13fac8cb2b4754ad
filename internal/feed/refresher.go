// Package feed owns the sample buffer: it fetches from the device, falls back
// to an empty buffer on failure, and publishes the newest result.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrissnell/fluidwatch/internal/metrics"
	"github.com/chrissnell/fluidwatch/internal/samples"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fetcher retrieves the raw sample array from the device.
type Fetcher interface {
	FetchSamples(ctx context.Context) ([]float64, error)
}

// Refresher fetches the device buffer on demand and on a schedule.
type Refresher struct {
	fetcher     Fetcher
	geometry    samples.Geometry
	store       *Store
	distributor chan<- Snapshot
	logger      *zap.SugaredLogger
	now         func() time.Time

	seq      atomic.Uint64
	inFlight atomic.Int32
}

// NewRefresher creates a refresher publishing into store. distributor may be
// nil; when set, every accepted snapshot is also sent there for storage.
func NewRefresher(fetcher Fetcher, g samples.Geometry, store *Store, distributor chan<- Snapshot, logger *zap.SugaredLogger) *Refresher {
	return &Refresher{
		fetcher:     fetcher,
		geometry:    g,
		store:       store,
		distributor: distributor,
		logger:      logger.Named("feed"),
		now:         time.Now,
	}
}

// Refresh performs one fetch and publishes the result. It never returns an
// error: a failed fetch publishes an all-zero buffer instead. A fetch cut
// short by ctx is not a device failure and publishes nothing. The returned
// snapshot is what this fetch produced, even if it was discarded as stale.
func (r *Refresher) Refresh(ctx context.Context) Snapshot {
	seq := r.seq.Add(1)

	r.inFlight.Add(1)
	metrics.FetchesInFlight.Inc()
	start := time.Now()
	raw, err := r.fetcher.FetchSamples(ctx)
	metrics.FetchDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.FetchesInFlight.Dec()
	r.inFlight.Add(-1)

	snap := Snapshot{
		ID:        uuid.New(),
		Seq:       seq,
		FetchedAt: r.now(),
	}
	if err != nil && ctx.Err() != nil {
		// The caller gave up; that says nothing about the device, so the
		// buffer other viewers see is left alone.
		r.logger.Debugw("fetch abandoned by caller", "seq", seq, "error", err)
		metrics.FetchesTotal.WithLabelValues("cancelled").Inc()
		snap.Buffer = r.store.Latest().Buffer
		snap.Err = err.Error()
		return snap
	}
	if err != nil {
		r.logger.Warnw("failed to fetch sample buffer; showing empty chart", "seq", seq, "error", err)
		metrics.FetchesTotal.WithLabelValues("failure").Inc()
		snap.Buffer = samples.Zero(r.geometry)
		snap.Err = err.Error()
	} else {
		metrics.FetchesTotal.WithLabelValues("success").Inc()
		snap.Buffer = samples.New(r.geometry, raw)
		snap.OK = true
		snap.RawCount = len(raw)
		if len(raw) > r.geometry.Points() {
			r.logger.Debugw("device returned more samples than the horizon holds; keeping the most recent",
				"received", len(raw), "kept", r.geometry.Points())
		}
	}

	if err := r.store.Publish(snap); err != nil {
		if errors.Is(err, ErrStaleSnapshot) {
			metrics.StaleSnapshotsTotal.Inc()
			r.logger.Debugw("discarding stale fetch result", "seq", seq, "current", r.store.Latest().Seq)
		}
		return snap
	}

	metrics.BufferTotalVolume.Set(snap.Buffer.Total())

	if r.distributor != nil {
		select {
		case r.distributor <- snap:
		case <-ctx.Done():
		}
	}
	return snap
}

// InFlight reports how many fetches are outstanding.
func (r *Refresher) InFlight() int {
	return int(r.inFlight.Load())
}

// Store returns the store the refresher publishes to.
func (r *Refresher) Store() *Store {
	return r.store
}

// Start performs the initial load and then refreshes every interval until ctx
// is cancelled. Scheduled fetches are not de-duplicated: a slow fetch may
// overlap the next one, and the store keeps whichever was started last.
func (r *Refresher) Start(ctx context.Context, wg *sync.WaitGroup, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", every)
	}

	r.Refresh(ctx)

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.WaitForSchedule()
	if _, err := scheduler.Every(every).Do(func() {
		r.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("could not schedule refresh: %w", err)
	}

	r.logger.Infow("starting refresh scheduler", "interval", every)
	scheduler.StartAsync()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		scheduler.Stop()
		r.logger.Info("refresh scheduler stopped")
	}()

	return nil
}
