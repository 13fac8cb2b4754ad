// Package view turns a sample buffer and the user's current range/offset
// selection into the complete, classified bar series a renderer draws.
// Render is a pure function: identical inputs yield identical results.
package view

import (
	"fmt"
	"time"

	"github.com/chrissnell/fluidwatch/internal/paging"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/samples"
	"github.com/chrissnell/fluidwatch/internal/window"
	"gonum.org/v1/gonum/stat"
)

const labelLayout = "Jan 2, 03:04 PM"

// State is the user's selection. It is a value type; navigation returns a
// new State rather than modifying the receiver.
type State struct {
	RangeHours  int     `json:"range_hours"`
	OffsetHours float64 `json:"offset_hours"`
}

// Initial returns the default selection: the shortest range, at the present.
func Initial(t window.Table) State {
	return State{RangeHours: t.Shortest()}
}

// WithRange switches to a new range. Changing range always returns to the present.
func (s State) WithRange(rangeHours int) State {
	return State{RangeHours: rangeHours}
}

// Scroll moves one page in direction (paging.Forward or paging.Back).
func (s State) Scroll(direction int, spanHours float64) State {
	s.OffsetHours = paging.NextOffset(direction, s.OffsetHours, float64(s.RangeHours), spanHours)
	return s
}

// Validate checks the selection against the supported ranges.
func (s State) Validate(t window.Table) error {
	if _, err := t.Lookup(s.RangeHours); err != nil {
		return err
	}
	if s.OffsetHours < 0 || s.OffsetHours != s.OffsetHours {
		return window.ErrNegativeOffset
	}
	return nil
}

// Input is everything a render depends on.
type Input struct {
	Buffer     samples.Buffer
	State      State
	Table      window.Table
	Thresholds rate.Thresholds
	Weight     float64
	Now        time.Time
	Location   *time.Location
}

// Bucket is a classified bar.
type Bucket struct {
	Timestamp       time.Time           `json:"timestamp"`
	Value           float64             `json:"value"`
	DurationMinutes int                 `json:"duration_minutes"`
	Rate            float64             `json:"rate"`
	Classification  rate.Classification `json:"classification"`
}

// Result is the complete render handed to the presentation layer.
type Result struct {
	RangeHours  int          `json:"range_hours"`
	OffsetHours float64      `json:"offset_hours"`
	Unit        string       `json:"unit"`
	Label       string       `json:"label"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Buckets     []Bucket     `json:"buckets"`
	Pagination  paging.State `json:"pagination"`
	Total       float64      `json:"total"`
	MeanRate    float64      `json:"mean_rate"`
}

// Render windows, aggregates and classifies the buffer for the given selection.
func Render(in Input) (Result, error) {
	if err := rate.ValidateWeight(in.Weight); err != nil {
		return Result{}, err
	}

	spec, err := in.Table.Lookup(in.State.RangeHours)
	if err != nil {
		return Result{}, err
	}
	if err := in.State.Validate(in.Table); err != nil {
		return Result{}, err
	}

	raw := window.Aggregate(in.Buffer, spec, in.State.OffsetHours, in.Now)

	buckets := make([]Bucket, len(raw))
	rates := make([]float64, len(raw))
	weights := make([]float64, len(raw))
	for i, b := range raw {
		hours := b.Duration.Hours()
		r, err := rate.Rate(b.Value, hours, in.Weight)
		if err != nil {
			return Result{}, fmt.Errorf("bucket %d: %w", i, err)
		}
		buckets[i] = Bucket{
			Timestamp:       b.Timestamp,
			Value:           b.Value,
			DurationMinutes: int(b.Duration / time.Minute),
			Rate:            r,
			Classification:  in.Thresholds.ClassifyRate(r),
		}
		rates[i] = r
		weights[i] = hours
	}

	var meanRate float64
	if len(rates) > 0 {
		meanRate = stat.Mean(rates, weights)
	}

	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	end := in.Now.Add(-hoursToDuration(in.State.OffsetHours)).In(loc)
	start := end.Add(-time.Duration(in.State.RangeHours) * time.Hour)

	return Result{
		RangeHours:  in.State.RangeHours,
		OffsetHours: in.State.OffsetHours,
		Unit:        spec.Unit,
		Label:       Label(start, end),
		Start:       start,
		End:         end,
		Buckets:     buckets,
		Pagination:  paging.Evaluate(in.State.OffsetHours, float64(in.State.RangeHours), in.Buffer.SpanHours()),
		Total:       window.Total(raw),
		MeanRate:    meanRate,
	}, nil
}

// Label formats the displayed time range.
func Label(start, end time.Time) string {
	return fmt.Sprintf("Showing: %s to %s", start.Format(labelLayout), end.Format(labelLayout))
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
