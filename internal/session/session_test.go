package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chrissnell/fluidwatch/internal/device"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"go.uber.org/zap"
)

type fakeDevice struct {
	startErr, stopErr error
	starts, stops     int
}

func (d *fakeDevice) Start(context.Context) error {
	d.starts++
	return d.startErr
}

func (d *fakeDevice) Stop(context.Context) error {
	d.stops++
	return d.stopErr
}

type fakeRefresher struct {
	called chan struct{}
}

func (r *fakeRefresher) Refresh(context.Context) feed.Snapshot {
	r.called <- struct{}{}
	return feed.Snapshot{}
}

func TestStartAndStop(t *testing.T) {
	d := &fakeDevice{}
	r := &fakeRefresher{called: make(chan struct{}, 1)}
	s := New(context.Background(), d, r, 0, zap.NewNop().Sugar())

	if _, err := s.Weight(); !errors.Is(err, rate.ErrInvalidWeight) {
		t.Errorf("Weight() before start error = %v, want ErrInvalidWeight", err)
	}

	if err := s.Start(context.Background(), 70); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	st := s.Status()
	if !st.Connected || st.Weight != 70 || st.StartedAt.IsZero() {
		t.Errorf("Status() after start = %+v", st)
	}
	if w, err := s.Weight(); err != nil || w != 70 {
		t.Errorf("Weight() = %v, %v; want 70", w, err)
	}

	select {
	case <-r.called:
	case <-time.After(time.Second):
		t.Error("Start() should trigger a refresh")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Status().Connected {
		t.Error("session should be disconnected after stop")
	}
	if w, _ := s.Weight(); w != 70 {
		t.Errorf("weight should be kept after stop, got %v", w)
	}
}

func TestStartFailureLeavesStateUnchanged(t *testing.T) {
	d := &fakeDevice{startErr: fmt.Errorf("%w: start: unexpected status code 503", device.ErrActionFailed)}
	r := &fakeRefresher{called: make(chan struct{}, 1)}
	s := New(context.Background(), d, r, 55, zap.NewNop().Sugar())

	err := s.Start(context.Background(), 80)
	if !errors.Is(err, device.ErrActionFailed) {
		t.Fatalf("Start() error = %v, want ErrActionFailed", err)
	}
	st := s.Status()
	if st.Connected || st.Weight != 55 {
		t.Errorf("Status() = %+v, want disconnected with the default weight", st)
	}
	select {
	case <-r.called:
		t.Error("a failed start must not trigger a refresh")
	default:
	}
}

func TestStopFailureLeavesStateUnchanged(t *testing.T) {
	d := &fakeDevice{}
	s := New(context.Background(), d, nil, 0, zap.NewNop().Sugar())
	if err := s.Start(context.Background(), 60); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.stopErr = fmt.Errorf("%w: stop: timeout", device.ErrActionFailed)
	if err := s.Stop(context.Background()); !errors.Is(err, device.ErrActionFailed) {
		t.Fatalf("Stop() error = %v, want ErrActionFailed", err)
	}
	if !s.Status().Connected {
		t.Error("a failed stop must leave the session connected")
	}
}

func TestStartRejectsInvalidWeight(t *testing.T) {
	for _, w := range []float64{0, -1} {
		d := &fakeDevice{}
		s := New(context.Background(), d, nil, 0, zap.NewNop().Sugar())
		if err := s.Start(context.Background(), w); !errors.Is(err, rate.ErrInvalidWeight) {
			t.Errorf("Start(%v) error = %v, want ErrInvalidWeight", w, err)
		}
		if d.starts != 0 {
			t.Errorf("Start(%v) should not call the device", w)
		}
	}
}
