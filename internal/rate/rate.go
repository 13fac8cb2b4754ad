// Package rate classifies bucket volumes against weight-normalized hourly
// output thresholds.
package rate

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidWeight is returned for a missing, zero, negative or non-finite weight.
	ErrInvalidWeight = errors.New("weight must be a positive number")
	// ErrInvalidDuration is returned for a non-positive bucket duration.
	ErrInvalidDuration = errors.New("bucket duration must be positive")
	// ErrInvalidValue is returned for a negative or non-finite bucket value.
	ErrInvalidValue = errors.New("bucket value must be a non-negative number")
)

// Classification is the severity tier used to color a bar.
type Classification int

const (
	Low Classification = iota
	Adequate
	Good
)

func (c Classification) String() string {
	switch c {
	case Good:
		return "good"
	case Adequate:
		return "adequate"
	default:
		return "low"
	}
}

// MarshalText encodes the classification as its lower-case name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a lower-case classification name.
func (c *Classification) UnmarshalText(b []byte) error {
	switch string(b) {
	case "good":
		*c = Good
	case "adequate":
		*c = Adequate
	case "low":
		*c = Low
	default:
		return fmt.Errorf("unknown classification %q", string(b))
	}
	return nil
}

// Thresholds are the two ascending rate cutoffs, in volume per unit weight
// per hour. Both are inclusive at their lower bound.
type Thresholds struct {
	Good     float64 `json:"good" yaml:"good"`
	Adequate float64 `json:"adequate" yaml:"adequate"`
}

// DefaultThresholds are the common 0.5 / 0.3 mL/kg/h urine output cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Good: 0.5, Adequate: 0.3}
}

// Validate checks that both cutoffs are finite, non-negative and ascending.
func (t Thresholds) Validate() error {
	if !finite(t.Good) || !finite(t.Adequate) || t.Adequate < 0 {
		return fmt.Errorf("thresholds must be non-negative numbers, got good=%v adequate=%v", t.Good, t.Adequate)
	}
	if t.Adequate > t.Good {
		return fmt.Errorf("adequate threshold %v is above good threshold %v", t.Adequate, t.Good)
	}
	return nil
}

// ValidateWeight rejects weights that would make a rate meaningless.
func ValidateWeight(weight float64) error {
	if !finite(weight) || weight <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWeight, weight)
	}
	return nil
}

// Rate normalizes a bucket volume by weight and duration.
func Rate(value, durationHours, weight float64) (float64, error) {
	if err := ValidateWeight(weight); err != nil {
		return 0, err
	}
	if !finite(durationHours) || durationHours <= 0 {
		return 0, fmt.Errorf("%w: got %v hours", ErrInvalidDuration, durationHours)
	}
	if !finite(value) || value < 0 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidValue, value)
	}
	return value / (weight * durationHours), nil
}

// Classify computes the bucket rate and maps it onto the thresholds.
func (t Thresholds) Classify(value, durationHours, weight float64) (Classification, error) {
	r, err := Rate(value, durationHours, weight)
	if err != nil {
		return Low, err
	}
	return t.ClassifyRate(r), nil
}

// ClassifyRate maps an already-normalized rate onto the thresholds.
func (t Thresholds) ClassifyRate(r float64) Classification {
	switch {
	case r >= t.Good:
		return Good
	case r >= t.Adequate:
		return Adequate
	default:
		return Low
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
