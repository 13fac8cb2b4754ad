// Package session tracks whether the sensor is enabled and the patient weight
// used to classify output rates.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/device"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/metrics"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"go.uber.org/zap"
)

// Device enables and disables the sensor.
type Device interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Refresher reloads the sample buffer.
type Refresher interface {
	Refresh(ctx context.Context) feed.Snapshot
}

// Status is the session as reported to clients.
type Status struct {
	Connected bool      `json:"connected" msgpack:"connected"`
	Weight    float64   `json:"weight,omitempty" msgpack:"weight,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty" msgpack:"started_at,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	ctx       context.Context
	device    Device
	refresher Refresher
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	connected bool
	weight    float64
	startedAt time.Time
}

// New creates a disconnected session. ctx bounds the background refresh
// triggered by Start. defaultWeight, if positive, is used for rendering until
// a session is started with an explicit weight.
func New(ctx context.Context, d Device, r Refresher, defaultWeight float64, logger *zap.SugaredLogger) *Session {
	s := &Session{
		ctx:       ctx,
		device:    d,
		refresher: r,
		logger:    logger.Named("session"),
	}
	if defaultWeight > 0 {
		s.weight = defaultWeight
	}
	return s
}

// Start enables the device for a patient of the given weight in kilograms.
// The session only becomes connected if the device accepts the call; a
// refresh is then triggered so the chart reflects the new state promptly.
func (s *Session) Start(ctx context.Context, weight float64) error {
	if err := rate.ValidateWeight(weight); err != nil {
		return err
	}

	if err := s.device.Start(ctx); err != nil {
		metrics.DeviceActionsTotal.WithLabelValues(device.ActionStart.String(), "failure").Inc()
		s.logger.Warnw("device start failed", "error", err)
		return err
	}
	metrics.DeviceActionsTotal.WithLabelValues(device.ActionStart.String(), "success").Inc()

	s.mu.Lock()
	s.connected = true
	s.weight = weight
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Infow("session started", "weight", weight)

	if s.refresher != nil {
		go s.refresher.Refresh(s.ctx)
	}
	return nil
}

// Stop disables the device. The session stays connected if the call fails.
func (s *Session) Stop(ctx context.Context) error {
	if err := s.device.Stop(ctx); err != nil {
		metrics.DeviceActionsTotal.WithLabelValues(device.ActionStop.String(), "failure").Inc()
		s.logger.Warnw("device stop failed", "error", err)
		return err
	}
	metrics.DeviceActionsTotal.WithLabelValues(device.ActionStop.String(), "success").Inc()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	s.logger.Info("session stopped")
	return nil
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Connected: s.connected, Weight: s.weight, StartedAt: s.startedAt}
}

// Weight returns the weight to classify with, or an error wrapping
// rate.ErrInvalidWeight when none is known.
func (s *Session) Weight() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := rate.ValidateWeight(s.weight); err != nil {
		return 0, err
	}
	return s.weight, nil
}
