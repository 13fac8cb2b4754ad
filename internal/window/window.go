// Package window slices a sample buffer into the currently displayed range
// and folds it into time-stamped bars.
package window

import (
	"errors"
	"math"
	"time"

	"github.com/chrissnell/fluidwatch/internal/samples"
	"gonum.org/v1/gonum/floats"
)

// ErrNegativeOffset is returned when asked for a window in the future.
var ErrNegativeOffset = errors.New("offset must not be negative")

// Bucket is one bar of the chart. Value is the total volume of the samples
// folded into it; volumes accumulate, they are never averaged.
type Bucket struct {
	Timestamp time.Time     `json:"timestamp"`
	Value     float64       `json:"value"`
	Points    int           `json:"points"`
	Duration  time.Duration `json:"duration"`
}

// Aggregate looks up rangeHours in the table and folds the matching window.
func (t Table) Aggregate(buf samples.Buffer, rangeHours int, offsetHours float64, now time.Time) ([]Bucket, error) {
	spec, err := t.Lookup(rangeHours)
	if err != nil {
		return nil, err
	}
	if offsetHours < 0 || math.IsNaN(offsetHours) {
		return nil, ErrNegativeOffset
	}
	return Aggregate(buf, spec, offsetHours, now), nil
}

// Aggregate selects the most recent spec.RangeHours of samples, shifted
// offsetHours into the past, and folds them into consecutive buckets. The
// last bucket may be short. Timestamps are anchored to now, since the device
// reports no wall-clock times of its own. An empty window yields no buckets.
func Aggregate(buf samples.Buffer, spec Spec, offsetHours float64, now time.Time) []Bucket {
	interval := buf.IntervalMinutes()
	n := buf.Len()
	if interval <= 0 || n == 0 {
		return []Bucket{}
	}

	offsetPoints := int(math.Floor(offsetHours * 60 / float64(interval)))
	rangePoints := spec.RangePoints(interval)

	start := n - rangePoints - offsetPoints
	if start < 0 {
		start = 0
	}
	end := n - offsetPoints

	slice := buf.Slice(start, end)
	if len(slice) == 0 {
		return []Bucket{}
	}

	ppb := spec.PointsPerBucket(interval)
	step := time.Duration(interval) * time.Minute

	buckets := make([]Bucket, 0, (len(slice)+ppb-1)/ppb)
	for i := 0; i < len(slice); i += ppb {
		j := i + ppb
		if j > len(slice) {
			j = len(slice)
		}
		chunk := slice[i:j]

		back := offsetPoints + (rangePoints - (i + 1))
		buckets = append(buckets, Bucket{
			Timestamp: now.Add(-time.Duration(back) * step),
			Value:     floats.Sum(chunk),
			Points:    len(chunk),
			Duration:  time.Duration(len(chunk)) * step,
		})
	}
	return buckets
}

// Total returns the summed volume of all buckets.
func Total(buckets []Bucket) float64 {
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.Value
	}
	return floats.Sum(values)
}
