// Package controllers holds what the served APIs (REST, websocket, gRPC)
// share: rendering the current view and reporting status.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/metrics"
	"github.com/chrissnell/fluidwatch/internal/paging"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/session"
	"github.com/chrissnell/fluidwatch/internal/storage"
	"github.com/chrissnell/fluidwatch/internal/view"
	"github.com/chrissnell/fluidwatch/internal/window"
)

// ErrBadRequest marks errors caused by client input.
var ErrBadRequest = errors.New("bad request")

// Refresher reloads the sample buffer and reports outstanding fetches.
type Refresher interface {
	Refresh(ctx context.Context) feed.Snapshot
	InFlight() int
}

// HistoryReader is implemented by storage backends that keep past fetches.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]feed.Record, error)
}

// Service renders views from the latest snapshot. History and Health are
// optional.
type Service struct {
	Store      *feed.Store
	Refresher  Refresher
	Session    *session.Session
	History    HistoryReader
	Health     *storage.HealthManager
	Table      window.Table
	Thresholds rate.Thresholds
	Location   *time.Location
	Now        func() time.Time
}

// Status is the dashboard header: connection, loading and last fetch state.
type Status struct {
	Connected    bool      `json:"connected"`
	Weight       float64   `json:"weight,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	Refreshing   bool      `json:"refreshing"`
	Seq          uint64    `json:"seq"`
	FetchedAt    time.Time `json:"fetched_at,omitempty"`
	FetchOK      bool      `json:"fetch_ok"`
	FetchError   string    `json:"fetch_error,omitempty"`
	SpanHours    float64   `json:"span_hours"`
	TotalVolume  float64   `json:"total_volume"`
	Ranges       []int     `json:"ranges"`
	DefaultRange int       `json:"default_range"`
	IntervalMins int       `json:"interval_minutes"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// View renders state against the latest snapshot. weight overrides the
// session weight when positive.
func (s *Service) View(state view.State, weight float64) (view.Result, error) {
	if weight == 0 {
		w, err := s.Session.Weight()
		if err != nil {
			return view.Result{}, fmt.Errorf("%w: no patient weight; start a session or pass weight: %w", ErrBadRequest, err)
		}
		weight = w
	}

	start := time.Now()
	res, err := view.Render(view.Input{
		Buffer:     s.Store.Latest().Buffer,
		State:      state,
		Table:      s.Table,
		Thresholds: s.Thresholds,
		Weight:     weight,
		Now:        s.now(),
		Location:   s.Location,
	})
	if err != nil {
		if errors.Is(err, rate.ErrInvalidWeight) || errors.Is(err, window.ErrUnsupportedRange) || errors.Is(err, window.ErrNegativeOffset) {
			return view.Result{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return view.Result{}, err
	}
	metrics.RenderDurationSeconds.WithLabelValues(strconv.Itoa(state.RangeHours)).Observe(time.Since(start).Seconds())
	return res, nil
}

// Status reports the session and the latest fetch.
func (s *Service) Status() Status {
	snap := s.Store.Latest()
	sess := s.Session.Status()
	st := Status{
		Connected:    sess.Connected,
		Weight:       sess.Weight,
		StartedAt:    sess.StartedAt,
		Seq:          snap.Seq,
		FetchedAt:    snap.FetchedAt,
		FetchOK:      snap.OK,
		FetchError:   snap.Err,
		SpanHours:    snap.Buffer.SpanHours(),
		TotalVolume:  snap.Buffer.Total(),
		Ranges:       s.Table.Ranges(),
		DefaultRange: s.Table.Shortest(),
		IntervalMins: snap.Buffer.IntervalMinutes(),
	}
	if s.Refresher != nil {
		st.Refreshing = s.Refresher.InFlight() > 0
	}
	return st
}

// Refresh fetches now and returns the resulting status.
func (s *Service) Refresh(ctx context.Context) Status {
	if s.Refresher != nil {
		s.Refresher.Refresh(ctx)
	}
	return s.Status()
}

// SpanHours is the history currently available for paging.
func (s *Service) SpanHours() float64 {
	return s.Store.Latest().Buffer.SpanHours()
}

// ParseState builds a view selection from query-style strings. An empty
// range selects the default view; an empty offset means the present.
func (s *Service) ParseState(rangeStr, offsetStr string) (view.State, error) {
	var (
		rangeHours  int
		offsetHours float64
		err         error
	)
	if rangeStr != "" {
		rangeHours, err = strconv.Atoi(rangeStr)
		if err != nil || rangeHours == 0 {
			return view.State{}, fmt.Errorf("%w: range %q is not a whole number of hours", ErrBadRequest, rangeStr)
		}
	}
	if offsetStr != "" {
		offsetHours, err = strconv.ParseFloat(offsetStr, 64)
		if err != nil || math.IsNaN(offsetHours) || math.IsInf(offsetHours, 0) {
			return view.State{}, fmt.Errorf("%w: offset %q is not a number of hours", ErrBadRequest, offsetStr)
		}
	}
	return s.NewState(rangeHours, offsetHours)
}

// NewState validates a selection. A zero range selects the default view.
// The offset is clamped to the history currently available.
func (s *Service) NewState(rangeHours int, offsetHours float64) (view.State, error) {
	state := view.Initial(s.Table)
	if rangeHours != 0 {
		state = state.WithRange(rangeHours)
	}
	state.OffsetHours = offsetHours
	if err := state.Validate(s.Table); err != nil {
		return view.State{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	state.OffsetHours = paging.Clamp(state.OffsetHours, float64(state.RangeHours), s.SpanHours())
	return state, nil
}

// ParseWeight parses an optional weight; empty means use the session's.
func ParseWeight(weightStr string) (float64, error) {
	if weightStr == "" {
		return 0, nil
	}
	w, err := strconv.ParseFloat(weightStr, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: weight %q is not a number", ErrBadRequest, weightStr)
	}
	if err := rate.ValidateWeight(w); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return w, nil
}
