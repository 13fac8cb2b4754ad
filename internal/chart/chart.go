// Package chart draws a rendered view as a PNG bar chart, one bar per bucket,
// colored by rate classification.
package chart

import (
	"fmt"
	"io"
	"math"

	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/view"
	"github.com/chrissnell/fluidwatch/internal/window"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 400

	// maxLabels bounds how many x axis labels are drawn; the rest are left blank.
	maxLabels = 12
	padLeft   = 60
	padRight  = 20
)

var classColors = map[rate.Classification]string{
	rate.Good:     "2e7d32",
	rate.Adequate: "f9a825",
	rate.Low:      "c62828",
}

// Hex returns the classification's color as rrggbb.
func Hex(c rate.Classification) string {
	if col, ok := classColors[c]; ok {
		return col
	}
	return "9e9e9e"
}

// Color returns the bar color for a classification.
func Color(c rate.Classification) drawing.Color {
	return drawing.ColorFromHex(Hex(c))
}

// Render writes res as a PNG of the given size; non-positive sizes use the defaults.
func Render(w io.Writer, res view.Result, width, height int) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	bars, maxValue := bars(res)

	// One bar per slot; shrink bars and spacing so every bucket fits.
	slot := (width - padLeft - padRight) / len(bars)
	if slot < 2 {
		slot = 2
	}
	barWidth := slot * 3 / 4
	if barWidth < 1 {
		barWidth = 1
	}

	bc := chart.BarChart{
		Title:      res.Label,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: slot - barWidth,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: padRight, Bottom: 24}},
		XAxis:      chart.Style{FontSize: 8},
		YAxis: chart.YAxis{
			Name: "volume",
			// An explicit range keeps an all-zero view renderable.
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue},
		},
		Bars: bars,
	}

	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("could not render chart: %w", err)
	}
	return nil
}

func bars(res view.Result) ([]chart.Value, float64) {
	if len(res.Buckets) == 0 {
		return []chart.Value{{Label: "no data", Value: 0, Style: chart.Style{FillColor: drawing.ColorFromHex("eeeeee")}}}, 1
	}

	layout := "15:04"
	if res.Unit == window.UnitDay {
		layout = "Jan 2"
	}
	every := int(math.Ceil(float64(len(res.Buckets)) / maxLabels))

	maxValue := 0.0
	out := make([]chart.Value, len(res.Buckets))
	for i, b := range res.Buckets {
		col := Color(b.Classification)
		out[i] = chart.Value{
			Value: b.Value,
			Style: chart.Style{FillColor: col, StrokeColor: col, StrokeWidth: 1},
		}
		if i%every == 0 {
			out[i].Label = b.Timestamp.In(res.End.Location()).Format(layout)
		}
		maxValue = math.Max(maxValue, b.Value)
	}
	if maxValue <= 0 {
		maxValue = 1
	}
	return out, maxValue * 1.1
}
