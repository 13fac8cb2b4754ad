package storage

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/metrics"
	"go.uber.org/zap"
)

// HealthChecker is implemented by backends that can check their connection
type HealthChecker interface {
	CheckHealth(ctx context.Context) *Health
}

// StartHealthMonitor periodically records a backend's health in hm
func StartHealthMonitor(ctx context.Context, hm *HealthManager, storageType string, checker HealthChecker, interval time.Duration, logger *zap.SugaredLogger) {
	go func() {
		updateHealth := func() {
			health := checker.CheckHealth(ctx)
			hm.UpdateHealth(storageType, health)
			logger.Debugf("updated %s health status: %s", storageType, health.Status)
		}

		updateHealth()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateHealth()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", storageType)
				return
			}
		}
	}()
}

// ProcessSnapshots drains snapshotChan into processor until ctx is cancelled
func ProcessSnapshots(ctx context.Context, wg *sync.WaitGroup, snapshotChan <-chan feed.Snapshot, processor func(feed.Snapshot) error, name string, logger *zap.SugaredLogger) {
	defer wg.Done()

	for {
		select {
		case s := <-snapshotChan:
			if err := processor(s); err != nil {
				metrics.StorageWritesTotal.WithLabelValues(name, "error").Inc()
				logger.Errorf("%s snapshot processor error: %v", name, err)
				continue
			}
			metrics.StorageWritesTotal.WithLabelValues(name, "ok").Inc()
		case <-ctx.Done():
			logger.Infof("cancellation request received, stopping %s snapshot processor", name)
			return
		}
	}
}
