// Package charts renders forecast and price charts as base64-encoded PNGs.
package charts

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	NextDaysSpan  = 30
	OneYearSpan   = 365
	CandleSpan    = 30
	defaultWidth  = 1000
	defaultHeight = 500
)

// ErrNotEnoughData is returned when the input is too short for the chart.
// Callers omit the chart in that case.
var ErrNotEnoughData = errors.New("charts: not enough data")

var (
	historyColor    = drawing.ColorFromHex("1f77b4")
	predictionColor = drawing.ColorFromHex("ff7f0e")
	nextDaysColor   = drawing.ColorFromHex("2ca02c")
	gridColor       = drawing.ColorFromHex("dddddd")
)

func steps(from, n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(from + i)
	}
	return xs
}

func gridStyle() chart.Style {
	return chart.Style{
		StrokeColor:     gridColor,
		StrokeWidth:     1,
		StrokeDashArray: []float64{4, 4},
	}
}

func encode(graph chart.Chart) (string, error) {
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("render %q: %w", graph.Title, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// PriceComparison plots the full history followed by the predictions as a
// dashed continuation.
func PriceComparison(ticker string, actual, predicted []float64) (string, error) {
	if len(actual) == 0 || len(predicted) == 0 {
		return "", ErrNotEnoughData
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s - Original vs Predicted Prices", ticker),
		Width:  defaultWidth,
		Height: defaultHeight,
		XAxis:  chart.XAxis{Name: "Days"},
		YAxis:  chart.YAxis{Name: "Price"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Original Historical Prices",
				XValues: steps(0, len(actual)),
				YValues: actual,
				Style:   chart.Style{StrokeColor: historyColor, StrokeWidth: 1.5},
			},
			chart.ContinuousSeries{
				Name:    "Predicted Prices",
				XValues: steps(len(actual), len(predicted)),
				YValues: predicted,
				Style: chart.Style{
					StrokeColor:     predictionColor,
					StrokeWidth:     1.5,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return encode(graph)
}

// NextDays plots the first 30 predictions with markers.
func NextDays(ticker string, predicted []float64) (string, error) {
	if len(predicted) < NextDaysSpan {
		return "", ErrNotEnoughData
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s - Next %d Days Price Prediction", ticker, NextDaysSpan),
		Width:  defaultWidth,
		Height: 400,
		XAxis:  chart.XAxis{Name: "Day", GridMajorStyle: gridStyle()},
		YAxis:  chart.YAxis{Name: "Price (USD)", GridMajorStyle: gridStyle()},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Predicted Price",
				XValues: steps(1, NextDaysSpan),
				YValues: predicted[:NextDaysSpan],
				Style: chart.Style{
					StrokeColor: nextDaysColor,
					StrokeWidth: 2,
					DotColor:    nextDaysColor,
					DotWidth:    3,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return encode(graph)
}

// OneYearOverlay draws the last 365 actual closes against the predictions,
// padding the predictions with their last value up to 365 points.
func OneYearOverlay(ticker string, actual, predicted []float64) (string, error) {
	if len(actual) < OneYearSpan || len(predicted) == 0 {
		return "", ErrNotEnoughData
	}

	trimmed := actual[len(actual)-OneYearSpan:]
	padded := make([]float64, OneYearSpan)
	n := copy(padded, predicted)
	for i := n; i < OneYearSpan; i++ {
		padded[i] = predicted[len(predicted)-1]
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s - 1-Year Actual vs Predicted", ticker),
		Width:  defaultWidth,
		Height: defaultHeight,
		XAxis:  chart.XAxis{Name: "Days", GridMajorStyle: gridStyle()},
		YAxis:  chart.YAxis{Name: "Price (USD)", GridMajorStyle: gridStyle()},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Actual Prices",
				XValues: steps(0, OneYearSpan),
				YValues: trimmed,
				Style:   chart.Style{StrokeColor: historyColor, StrokeWidth: 2},
			},
			chart.ContinuousSeries{
				Name:    "Predicted Prices",
				XValues: steps(0, OneYearSpan),
				YValues: padded,
				Style:   chart.Style{StrokeColor: predictionColor, StrokeWidth: 2},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return encode(graph)
}
