package window

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedRange is returned for a display range that has no entry in the table.
var ErrUnsupportedRange = errors.New("unsupported display range")

// Axis units reported to renderers.
const (
	UnitHour = "hour"
	UnitDay  = "day"
)

// Spec is one row of the bucket-width table: a display range and the target
// duration of each bar drawn for it. BucketMinutes of zero means raw
// samples are drawn one per bar.
type Spec struct {
	RangeHours    int    `json:"range_hours" yaml:"range_hours"`
	BucketMinutes int    `json:"bucket_minutes" yaml:"bucket_minutes"`
	Unit          string `json:"unit" yaml:"unit"`
}

// Raw reports whether the range is drawn without aggregation.
func (s Spec) Raw() bool {
	return s.BucketMinutes == 0
}

// RangePoints is the number of samples a full window of this range covers.
func (s Spec) RangePoints(intervalMinutes int) int {
	if intervalMinutes <= 0 {
		return 0
	}
	return s.RangeHours * 60 / intervalMinutes
}

// PointsPerBucket derives the aggregation width from the bucket duration,
// rounding up so a bar never covers less than its target duration.
func (s Spec) PointsPerBucket(intervalMinutes int) int {
	if s.Raw() || intervalMinutes <= 0 {
		return 1
	}
	ppb := (s.BucketMinutes + intervalMinutes - 1) / intervalMinutes
	if ppb < 1 {
		return 1
	}
	return ppb
}

// BucketCount is the number of bars a full window produces.
func (s Spec) BucketCount(intervalMinutes int) int {
	points := s.RangePoints(intervalMinutes)
	ppb := s.PointsPerBucket(intervalMinutes)
	return (points + ppb - 1) / ppb
}

// Table maps each supported display range to its bucket width.
type Table struct {
	specs map[int]Spec
}

// DefaultTable is the range set offered by the bedside chart: 6h of raw
// samples, 24h and 72h of hourly bars, and 7 days of daily bars.
func DefaultTable() Table {
	t, _ := NewTable(DefaultSpecs()...)
	return t
}

// DefaultSpecs returns the rows of DefaultTable.
func DefaultSpecs() []Spec {
	return []Spec{
		{RangeHours: 6, BucketMinutes: 0, Unit: UnitHour},
		{RangeHours: 24, BucketMinutes: 60, Unit: UnitHour},
		{RangeHours: 72, BucketMinutes: 60, Unit: UnitHour},
		{RangeHours: 168, BucketMinutes: 24 * 60, Unit: UnitDay},
	}
}

// NewTable validates the given rows and builds a lookup table.
func NewTable(specs ...Spec) (Table, error) {
	if len(specs) == 0 {
		return Table{}, errors.New("range table must have at least one entry")
	}

	t := Table{specs: make(map[int]Spec, len(specs))}
	for _, s := range specs {
		if s.RangeHours <= 0 {
			return Table{}, fmt.Errorf("range must be positive, got %d hours", s.RangeHours)
		}
		if s.BucketMinutes < 0 {
			return Table{}, fmt.Errorf("range %dh: bucket duration must not be negative", s.RangeHours)
		}
		if s.BucketMinutes > s.RangeHours*60 {
			return Table{}, fmt.Errorf("range %dh: bucket of %d minutes is wider than the range", s.RangeHours, s.BucketMinutes)
		}
		if _, dup := t.specs[s.RangeHours]; dup {
			return Table{}, fmt.Errorf("range %dh listed twice", s.RangeHours)
		}
		if s.Unit == "" {
			s.Unit = UnitHour
			if s.BucketMinutes >= 24*60 {
				s.Unit = UnitDay
			}
		}
		t.specs[s.RangeHours] = s
	}
	return t, nil
}

// Lookup returns the row for rangeHours.
func (t Table) Lookup(rangeHours int) (Spec, error) {
	s, ok := t.specs[rangeHours]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %dh", ErrUnsupportedRange, rangeHours)
	}
	return s, nil
}

// Ranges lists the supported ranges, shortest first.
func (t Table) Ranges() []int {
	out := make([]int, 0, len(t.specs))
	for r := range t.specs {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// Shortest returns the smallest supported range, the default view.
func (t Table) Shortest() int {
	ranges := t.Ranges()
	if len(ranges) == 0 {
		return 0
	}
	return ranges[0]
}

// Specs returns the rows, shortest range first.
func (t Table) Specs() []Spec {
	out := make([]Spec, 0, len(t.specs))
	for _, r := range t.Ranges() {
		out = append(out, t.specs[r])
	}
	return out
}
