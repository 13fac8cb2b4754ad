// Package samples holds the fixed-horizon buffer of volume readings reported
// by the sensor, one value per sampling interval, most recent last.
package samples

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidGeometry is returned when the interval or horizon cannot describe
// a whole number of sampling points.
var ErrInvalidGeometry = errors.New("invalid buffer geometry")

// Geometry describes the sampling cadence and retained history of a buffer.
type Geometry struct {
	IntervalMinutes int `json:"interval_minutes"`
	HorizonHours    int `json:"horizon_hours"`
}

// Validate checks that the horizon is a positive whole multiple of the interval.
func (g Geometry) Validate() error {
	if g.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d minutes", ErrInvalidGeometry, g.IntervalMinutes)
	}
	if g.HorizonHours <= 0 {
		return fmt.Errorf("%w: horizon must be positive, got %d hours", ErrInvalidGeometry, g.HorizonHours)
	}
	if (g.HorizonHours*60)%g.IntervalMinutes != 0 {
		return fmt.Errorf("%w: %d hour horizon is not a multiple of the %d minute interval",
			ErrInvalidGeometry, g.HorizonHours, g.IntervalMinutes)
	}
	return nil
}

// Points returns N, the number of samples in a normalized buffer.
func (g Geometry) Points() int {
	if g.IntervalMinutes <= 0 {
		return 0
	}
	return g.HorizonHours * 60 / g.IntervalMinutes
}

// Buffer is an immutable, normalized sample buffer. It is replaced wholesale
// on every fetch and never modified after construction.
type Buffer struct {
	geometry Geometry
	values   []float64
}

// New normalizes raw into a buffer of exactly g.Points() samples.
func New(g Geometry, raw []float64) Buffer {
	return Buffer{geometry: g, values: Normalize(raw, g.Points())}
}

// Zero returns an all-zero buffer, used whenever a fetch fails.
func Zero(g Geometry) Buffer {
	return Buffer{geometry: g, values: make([]float64, g.Points())}
}

// Normalize returns exactly n samples. Short input is left-padded with zeros
// so that the most recent sample stays at the tail; long input keeps the most
// recent n. Negative and non-finite samples are recorded as zero.
func Normalize(raw []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}

	if len(raw) > n {
		raw = raw[len(raw)-n:]
	}

	out := make([]float64, n)
	pad := n - len(raw)
	for i, v := range raw {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[pad+i] = v
	}
	return out
}

// Len returns the number of samples, always Geometry().Points().
func (b Buffer) Len() int {
	return len(b.values)
}

// Geometry returns the cadence the buffer was normalized with.
func (b Buffer) Geometry() Geometry {
	return b.geometry
}

// IntervalMinutes is shorthand for Geometry().IntervalMinutes.
func (b Buffer) IntervalMinutes() int {
	return b.geometry.IntervalMinutes
}

// SpanHours returns the length of history held by the buffer.
func (b Buffer) SpanHours() float64 {
	return float64(len(b.values)*b.geometry.IntervalMinutes) / 60
}

// Values returns a copy of the samples.
func (b Buffer) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// Slice returns a read-only view of samples [start, end). Callers must not
// modify the returned slice.
func (b Buffer) Slice(start, end int) []float64 {
	if start < 0 {
		start = 0
	}
	if end > len(b.values) {
		end = len(b.values)
	}
	if start >= end {
		return nil
	}
	return b.values[start:end:end]
}

// Total is the volume accumulated over the whole horizon.
func (b Buffer) Total() float64 {
	return floats.Sum(b.values)
}
