package chart

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/view"
	"github.com/chrissnell/fluidwatch/internal/window"
)

func result(n int, value float64) view.Result {
	end := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	res := view.Result{RangeHours: 24, Unit: window.UnitHour, Label: "Showing: test", End: end, Start: end.Add(-24 * time.Hour)}
	classes := []rate.Classification{rate.Good, rate.Adequate, rate.Low}
	for i := 0; i < n; i++ {
		res.Buckets = append(res.Buckets, view.Bucket{
			Timestamp:       end.Add(-time.Duration(n-i) * time.Hour),
			Value:           value + float64(i),
			DurationMinutes: 60,
			Classification:  classes[i%3],
		})
	}
	return res
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		res  view.Result
	}{
		{"hourly", result(24, 10)},
		{"all zero", result(24, 0)},
		{"empty window", view.Result{Label: "Showing: nothing", End: time.Now()}},
		{"many bars", result(72, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Render(&buf, tt.res, 800, 300); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			img, err := png.Decode(&buf)
			if err != nil {
				t.Fatalf("output is not a PNG: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 300 {
				t.Errorf("image is %dx%d, want 800x300", b.Dx(), b.Dy())
			}
		})
	}
}

func TestColor(t *testing.T) {
	if Color(rate.Good) == Color(rate.Low) || Color(rate.Adequate) == Color(rate.Low) {
		t.Error("classifications should be drawn in distinct colors")
	}
}

func TestBarLabels(t *testing.T) {
	tests := []struct {
		name string
		unit string
		want string
	}{
		{"hourly", window.UnitHour, "11:00"},
		{"daily", window.UnitDay, "Mar 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := result(7, 1)
			res.Unit = tt.unit
			values, _ := bars(res)
			if got := values[0].Label; got != tt.want {
				t.Errorf("first label = %q, want %q", got, tt.want)
			}
		})
	}
}
