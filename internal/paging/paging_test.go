package paging

import "testing"

func TestScrollGuards(t *testing.T) {
	tests := []struct {
		name        string
		offset      float64
		rangeHours  float64
		span        float64
		wantBack    bool
		wantForward bool
	}{
		{name: "present", offset: 0, rangeHours: 24, span: 168, wantBack: true, wantForward: false},
		{name: "middle", offset: 48, rangeHours: 24, span: 168, wantBack: true, wantForward: true},
		{name: "oldest page", offset: 144, rangeHours: 24, span: 168, wantBack: false, wantForward: true},
		{name: "full horizon range", offset: 0, rangeHours: 168, span: 168, wantBack: false, wantForward: false},
		{name: "range wider than span", offset: 0, rangeHours: 168, span: 24, wantBack: false, wantForward: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanScrollBack(tt.offset, tt.rangeHours, tt.span); got != tt.wantBack {
				t.Errorf("CanScrollBack() = %v, want %v", got, tt.wantBack)
			}
			if got := CanScrollForward(tt.offset); got != tt.wantForward {
				t.Errorf("CanScrollForward() = %v, want %v", got, tt.wantForward)
			}
		})
	}
}

func TestNextOffset(t *testing.T) {
	tests := []struct {
		name       string
		direction  int
		offset     float64
		rangeHours float64
		span       float64
		expected   float64
	}{
		{name: "back one page", direction: Back, offset: 0, rangeHours: 24, span: 168, expected: 24},
		{name: "forward one page", direction: Forward, offset: 48, rangeHours: 24, span: 168, expected: 24},
		{name: "forward clamps at present", direction: Forward, offset: 0, rangeHours: 24, span: 168, expected: 0},
		{name: "back clamps at horizon", direction: Back, offset: 144, rangeHours: 24, span: 168, expected: 144},
		{name: "back partial page clamps", direction: Back, offset: 0, rangeHours: 72, span: 168, expected: 72},
		{name: "second back partial page clamps", direction: Back, offset: 72, rangeHours: 72, span: 168, expected: 96},
		{name: "range wider than span", direction: Back, offset: 0, rangeHours: 168, span: 24, expected: 0},
		{name: "zero direction", direction: 0, offset: 500, rangeHours: 24, span: 168, expected: 144},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOffset(tt.direction, tt.offset, tt.rangeHours, tt.span)
			if got != tt.expected {
				t.Errorf("NextOffset() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBackwardScrollReachesFixedPoint(t *testing.T) {
	for _, r := range []float64{6, 24, 72, 168} {
		span := 168.0
		offset := 0.0
		for i := 0; i < 100; i++ {
			next := NextOffset(Back, offset, r, span)
			if next < 0 || next > MaxOffset(r, span) {
				t.Fatalf("range %vh: offset %v escaped [0, %v]", r, next, MaxOffset(r, span))
			}
			if next == offset {
				break
			}
			offset = next
		}
		if offset != MaxOffset(r, span) {
			t.Errorf("range %vh: settled at %v, want %v", r, offset, MaxOffset(r, span))
		}
		if CanScrollBack(offset, r, span) {
			t.Errorf("range %vh: back still enabled at fixed point", r)
		}
		if NextOffset(Back, offset, r, span) != offset {
			t.Errorf("range %vh: back at fixed point is not a no-op", r)
		}
	}
}

func TestEvaluate(t *testing.T) {
	s := Evaluate(24, 24, 168)
	if !s.CanBack || !s.CanForward {
		t.Errorf("Evaluate() = %+v, want both directions enabled", s)
	}
	if s.BackOffset != 48 || s.ForwardOffset != 0 || s.MaxOffsetHours != 144 {
		t.Errorf("Evaluate() = %+v", s)
	}
}
