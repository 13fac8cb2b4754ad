package samples

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      []float64
		n        int
		expected []float64
	}{
		{
			name:     "exact length",
			raw:      []float64{1, 2, 3},
			n:        3,
			expected: []float64{1, 2, 3},
		},
		{
			name:     "short input is left padded",
			raw:      []float64{4, 5},
			n:        5,
			expected: []float64{0, 0, 0, 4, 5},
		},
		{
			name:     "empty input",
			raw:      nil,
			n:        3,
			expected: []float64{0, 0, 0},
		},
		{
			name:     "long input keeps most recent",
			raw:      []float64{1, 2, 3, 4, 5},
			n:        3,
			expected: []float64{3, 4, 5},
		},
		{
			name:     "invalid samples become zero",
			raw:      []float64{-1, math.NaN(), math.Inf(1), 2},
			n:        4,
			expected: []float64{0, 0, 0, 2},
		},
		{
			name:     "zero length",
			raw:      []float64{1},
			n:        0,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, tt.n)
			if len(got) != len(tt.expected) {
				t.Fatalf("Normalize() returned %d samples, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Normalize()[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	raw := []float64{1, 2, 3}
	out := Normalize(raw, 3)
	out[0] = 99
	if raw[0] != 1 {
		t.Errorf("Normalize modified its input: raw[0] = %v", raw[0])
	}
}

func TestGeometry(t *testing.T) {
	g := Geometry{IntervalMinutes: 15, HorizonHours: 168}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if g.Points() != 672 {
		t.Errorf("Points() = %d, want 672", g.Points())
	}

	bad := []Geometry{
		{IntervalMinutes: 0, HorizonHours: 168},
		{IntervalMinutes: 15, HorizonHours: 0},
		{IntervalMinutes: 7, HorizonHours: 1},
	}
	for _, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidGeometry", b, err)
		}
	}
}

func TestBuffer(t *testing.T) {
	g := Geometry{IntervalMinutes: 15, HorizonHours: 1}

	b := New(g, []float64{7})
	if b.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", b.Len())
	}
	if b.SpanHours() != 1 {
		t.Errorf("SpanHours() = %v, want 1", b.SpanHours())
	}

	values := b.Values()
	values[3] = 0
	if b.Values()[3] != 7 {
		t.Error("Values() must return a copy")
	}

	if got := b.Slice(2, 10); len(got) != 2 || got[1] != 7 {
		t.Errorf("Slice(2, 10) = %v, want [0 7]", got)
	}
	if got := b.Slice(4, 4); got != nil {
		t.Errorf("Slice(4, 4) = %v, want nil", got)
	}

	z := Zero(g)
	if z.Len() != 4 {
		t.Fatalf("Zero().Len() = %d, want 4", z.Len())
	}
	for i, v := range z.Values() {
		if v != 0 {
			t.Errorf("Zero()[%d] = %v, want 0", i, v)
		}
	}
}
