// Package paging decides whether the chart can be scrolled and computes the
// offset after a page step.
package paging

// Scroll directions. Forward moves toward the present, Back into the past.
const (
	Forward = 1
	Back    = -1
)

// MaxOffset is the largest legal offset: the window may not start before the
// oldest retained sample.
func MaxOffset(rangeHours, spanHours float64) float64 {
	m := spanHours - rangeHours
	if m < 0 {
		return 0
	}
	return m
}

// CanScrollBack reports whether an older page exists.
func CanScrollBack(offsetHours, rangeHours, spanHours float64) bool {
	return offsetHours < spanHours-rangeHours
}

// CanScrollForward reports whether a newer page exists.
func CanScrollForward(offsetHours float64) bool {
	return offsetHours > 0
}

// NextOffset moves the offset by one full range in the given direction and
// clamps it into [0, MaxOffset]. Any direction other than Forward or Back
// leaves the offset clamped but otherwise unchanged.
func NextOffset(direction int, offsetHours, rangeHours, spanHours float64) float64 {
	step := 0.0
	switch {
	case direction > 0:
		step = rangeHours
	case direction < 0:
		step = -rangeHours
	}
	return Clamp(offsetHours-step, rangeHours, spanHours)
}

// Clamp bounds an offset into [0, MaxOffset].
func Clamp(offsetHours, rangeHours, spanHours float64) float64 {
	max := MaxOffset(rangeHours, spanHours)
	if offsetHours > max {
		offsetHours = max
	}
	if offsetHours < 0 || offsetHours != offsetHours {
		offsetHours = 0
	}
	return offsetHours
}

// State is the navigation state handed to renderers alongside the bars.
type State struct {
	CanBack        bool    `json:"can_back"`
	CanForward     bool    `json:"can_forward"`
	BackOffset     float64 `json:"back_offset"`
	ForwardOffset  float64 `json:"forward_offset"`
	MaxOffsetHours float64 `json:"max_offset_hours"`
}

// Evaluate computes the full navigation state for a view.
func Evaluate(offsetHours, rangeHours, spanHours float64) State {
	return State{
		CanBack:        CanScrollBack(offsetHours, rangeHours, spanHours),
		CanForward:     CanScrollForward(offsetHours),
		BackOffset:     NextOffset(Back, offsetHours, rangeHours, spanHours),
		ForwardOffset:  NextOffset(Forward, offsetHours, rangeHours, spanHours),
		MaxOffsetHours: MaxOffset(rangeHours, spanHours),
	}
}
