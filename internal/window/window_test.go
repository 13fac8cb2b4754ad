package window

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/chrissnell/fluidwatch/internal/samples"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// sequential returns a full buffer whose samples are 1, 2, 3, ... so sums are exact.
func sequential(g samples.Geometry) samples.Buffer {
	raw := make([]float64, g.Points())
	for i := range raw {
		raw[i] = float64(i + 1)
	}
	return samples.New(g, raw)
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func TestBucketCountMatchesTable(t *testing.T) {
	tests := []struct {
		interval int
		expected map[int]int
	}{
		{interval: 15, expected: map[int]int{6: 24, 24: 24, 72: 72, 168: 7}},
		{interval: 5, expected: map[int]int{6: 72, 24: 24, 72: 72, 168: 7}},
		{interval: 10, expected: map[int]int{6: 36, 24: 24, 72: 72, 168: 7}},
		{interval: 60, expected: map[int]int{6: 6, 24: 24, 72: 72, 168: 7}},
	}

	table := DefaultTable()
	for _, tt := range tests {
		g := samples.Geometry{IntervalMinutes: tt.interval, HorizonHours: 168}
		buf := sequential(g)
		for _, r := range table.Ranges() {
			spec, _ := table.Lookup(r)
			if spec.BucketCount(tt.interval) != tt.expected[r] {
				t.Errorf("interval %d range %dh: BucketCount() = %d, want %d",
					tt.interval, r, spec.BucketCount(tt.interval), tt.expected[r])
			}

			buckets, err := table.Aggregate(buf, r, 0, now)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if len(buckets) != tt.expected[r] {
				t.Errorf("interval %d range %dh: got %d buckets, want %d", tt.interval, r, len(buckets), tt.expected[r])
			}
		}
	}
}

func TestBucketCountWithUnevenInterval(t *testing.T) {
	// 7 minute samples do not divide an hour; buckets round up to 9 points
	// and the trailing partial bucket is kept.
	spec := Spec{RangeHours: 24, BucketMinutes: 60}
	if spec.PointsPerBucket(7) != 9 {
		t.Fatalf("PointsPerBucket(7) = %d, want 9", spec.PointsPerBucket(7))
	}

	g := samples.Geometry{IntervalMinutes: 7, HorizonHours: 168}
	buf := sequential(g)
	buckets := Aggregate(buf, spec, 0, now)

	rangePoints := spec.RangePoints(7)
	want := (rangePoints + 8) / 9
	if len(buckets) != want {
		t.Fatalf("got %d buckets, want %d", len(buckets), want)
	}
	if last := buckets[len(buckets)-1]; last.Points != rangePoints%9 {
		t.Errorf("trailing bucket has %d points, want %d", last.Points, rangePoints%9)
	}
}

func TestDailyScenario(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := sequential(g)
	values := buf.Values()

	buckets, err := DefaultTable().Aggregate(buf, 24, 0, now)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(buckets) != 24 {
		t.Fatalf("got %d buckets, want 24", len(buckets))
	}

	start := len(values) - 96
	for i, b := range buckets {
		want := sum(values[start+i*4 : start+i*4+4])
		if b.Value != want {
			t.Errorf("bucket %d = %v, want %v", i, b.Value, want)
		}
		if b.Points != 4 || b.Duration != time.Hour {
			t.Errorf("bucket %d covers %d points / %v, want 4 / 1h", i, b.Points, b.Duration)
		}
	}

	last := buckets[len(buckets)-1]
	if age := now.Sub(last.Timestamp); age != 45*time.Minute {
		t.Errorf("most recent bucket stamped %v before now, want 45m", age)
	}
	if age := now.Sub(last.Timestamp); age >= time.Hour {
		t.Errorf("most recent bucket is more than one bucket width old: %v", age)
	}
}

func TestRawRangeIsOneToOne(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := sequential(g)
	values := buf.Values()

	buckets, err := DefaultTable().Aggregate(buf, 6, 0, now)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	tail := values[len(values)-24:]
	for i, b := range buckets {
		if b.Value != tail[i] || b.Points != 1 {
			t.Errorf("bucket %d = %v (%d points), want %v (1 point)", i, b.Value, b.Points, tail[i])
		}
		wantTS := now.Add(-time.Duration(24-(i+1)) * 15 * time.Minute)
		if !b.Timestamp.Equal(wantTS) {
			t.Errorf("bucket %d timestamp = %v, want %v", i, b.Timestamp, wantTS)
		}
	}
	if !buckets[len(buckets)-1].Timestamp.Equal(now) {
		t.Errorf("newest raw bucket should be stamped now")
	}
}

func TestOffsetShiftsWindow(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := sequential(g)
	values := buf.Values()

	buckets, err := DefaultTable().Aggregate(buf, 24, 24, now)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(buckets) != 24 {
		t.Fatalf("got %d buckets, want 24", len(buckets))
	}

	slice := values[len(values)-192 : len(values)-96]
	if got, want := Total(buckets), sum(slice); got != want {
		t.Errorf("Total() = %v, want %v", got, want)
	}

	wantFirst := now.Add(-time.Duration(96+95) * 15 * time.Minute)
	if !buckets[0].Timestamp.Equal(wantFirst) {
		t.Errorf("first bucket timestamp = %v, want %v", buckets[0].Timestamp, wantFirst)
	}
}

func TestSumPreservation(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := sequential(g)
	values := buf.Values()
	n := len(values)

	table := DefaultTable()
	for _, r := range table.Ranges() {
		spec, _ := table.Lookup(r)
		for _, offset := range []float64{0, float64(r), 100, 150} {
			buckets, err := table.Aggregate(buf, r, offset, now)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}

			rp := spec.RangePoints(15)
			op := int(offset * 60 / 15)
			start := n - rp - op
			if start < 0 {
				start = 0
			}
			end := n - op
			var want float64
			if end > start {
				want = sum(values[start:end])
			}
			if got := Total(buckets); got != want {
				t.Errorf("range %dh offset %vh: bucket total %v, slice total %v", r, offset, got, want)
			}
		}
	}
}

func TestPartialWindowAtHorizon(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := sequential(g)

	// 72h range shifted 144h back only has 24h of data left.
	buckets, err := DefaultTable().Aggregate(buf, 72, 144, now)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(buckets) != 24 {
		t.Fatalf("got %d buckets, want 24", len(buckets))
	}
	if buckets[0].Value != 1+2+3+4 {
		t.Errorf("first bucket = %v, want 10", buckets[0].Value)
	}
}

func TestEmptyWindow(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 24}
	buf := sequential(g)

	buckets, err := DefaultTable().Aggregate(buf, 6, 24, now)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if buckets == nil || len(buckets) != 0 {
		t.Errorf("got %v, want an empty non-nil series", buckets)
	}

	buckets, _ = DefaultTable().Aggregate(buf, 6, 1000, now)
	if len(buckets) != 0 {
		t.Errorf("got %d buckets past the horizon, want 0", len(buckets))
	}
}

func TestIdempotence(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := sequential(g)
	table := DefaultTable()

	for _, r := range table.Ranges() {
		a, _ := table.Aggregate(buf, r, 0, now)
		b, _ := table.Aggregate(buf, r, 0, now)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("range %dh: repeated aggregation differs", r)
		}
	}
}

func TestZeroBufferYieldsZeroBuckets(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := samples.Zero(g)
	table := DefaultTable()

	for _, r := range table.Ranges() {
		buckets, _ := table.Aggregate(buf, r, 0, now)
		spec, _ := table.Lookup(r)
		if len(buckets) != spec.BucketCount(15) {
			t.Errorf("range %dh: got %d buckets, want %d", r, len(buckets), spec.BucketCount(15))
		}
		for i, b := range buckets {
			if b.Value != 0 {
				t.Errorf("range %dh bucket %d = %v, want 0", r, i, b.Value)
			}
		}
	}
}

func TestAggregateErrors(t *testing.T) {
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}
	buf := samples.Zero(g)
	table := DefaultTable()

	if _, err := table.Aggregate(buf, 12, 0, now); !errors.Is(err, ErrUnsupportedRange) {
		t.Errorf("Aggregate(12h) error = %v, want ErrUnsupportedRange", err)
	}
	if _, err := table.Aggregate(buf, 24, -1, now); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("Aggregate(offset -1) error = %v, want ErrNegativeOffset", err)
	}
}

func TestNewTable(t *testing.T) {
	tests := []struct {
		name    string
		specs   []Spec
		wantErr bool
	}{
		{name: "default", specs: DefaultSpecs()},
		{name: "with two hour raw range", specs: append([]Spec{{RangeHours: 2}}, DefaultSpecs()...)},
		{name: "empty", specs: nil, wantErr: true},
		{name: "zero range", specs: []Spec{{RangeHours: 0}}, wantErr: true},
		{name: "negative bucket", specs: []Spec{{RangeHours: 6, BucketMinutes: -1}}, wantErr: true},
		{name: "bucket wider than range", specs: []Spec{{RangeHours: 1, BucketMinutes: 120}}, wantErr: true},
		{name: "duplicate", specs: []Spec{{RangeHours: 6}, {RangeHours: 6}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.specs...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTable() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTableDefaults(t *testing.T) {
	table, err := NewTable(Spec{RangeHours: 168, BucketMinutes: 1440}, Spec{RangeHours: 6})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	if table.Shortest() != 6 {
		t.Errorf("Shortest() = %d, want 6", table.Shortest())
	}
	if got := table.Ranges(); !reflect.DeepEqual(got, []int{6, 168}) {
		t.Errorf("Ranges() = %v, want [6 168]", got)
	}
	spec, _ := table.Lookup(168)
	if spec.Unit != UnitDay {
		t.Errorf("168h unit = %q, want %q", spec.Unit, UnitDay)
	}
}
