package charts

import (
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"stockwave/models"
)

var (
	upColor   = drawing.ColorFromHex("26a69a")
	downColor = drawing.ColorFromHex("ef5350")
)

// candleSeries draws OHLC bars at x = bar index.
type candleSeries struct {
	name string
	bars []models.Bar
}

func (cs candleSeries) GetName() string           { return cs.name }
func (cs candleSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (cs candleSeries) GetStyle() chart.Style     { return chart.Style{} }
func (cs candleSeries) Len() int                  { return len(cs.bars) }
func (cs candleSeries) GetBoundedValues(i int) (float64, float64, float64) {
	b := cs.bars[i]
	return float64(i), math.Max(b.High, math.Max(b.Open, b.Close)), math.Min(b.Low, math.Min(b.Open, b.Close))
}

func (cs candleSeries) Validate() error {
	if len(cs.bars) == 0 {
		return fmt.Errorf("candlestick series %q has no bars", cs.name)
	}
	return nil
}

func (cs candleSeries) Render(r chart.Renderer, canvasBox chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	slot := float64(canvasBox.Width()) / float64(len(cs.bars)+1)
	half := int(math.Max(1, slot*0.3))

	for i, b := range cs.bars {
		x := canvasBox.Left + xrange.Translate(float64(i))
		color := upColor
		if b.Close < b.Open {
			color = downColor
		}
		high := math.Max(b.High, math.Max(b.Open, b.Close))
		low := math.Min(b.Low, math.Min(b.Open, b.Close))

		r.SetStrokeColor(color)
		r.SetStrokeWidth(1)
		r.MoveTo(x, canvasBox.Bottom-yrange.Translate(high))
		r.LineTo(x, canvasBox.Bottom-yrange.Translate(low))
		r.Stroke()

		top := canvasBox.Bottom - yrange.Translate(math.Max(b.Open, b.Close))
		bottom := canvasBox.Bottom - yrange.Translate(math.Min(b.Open, b.Close))
		if bottom-top < 1 {
			bottom = top + 1
		}
		r.SetStrokeColor(color)
		r.SetFillColor(color)
		r.MoveTo(x-half, top)
		r.LineTo(x+half, top)
		r.LineTo(x+half, bottom)
		r.LineTo(x-half, bottom)
		r.LineTo(x-half, top)
		r.Close()
		r.FillStroke()
	}
}

// Candlestick renders the last 30 bars as OHLC candles labelled by date.
func Candlestick(ticker string, bars []models.Bar) (string, error) {
	if len(bars) == 0 {
		return "", ErrNotEnoughData
	}
	if len(bars) > CandleSpan {
		bars = bars[len(bars)-CandleSpan:]
	}

	labels := func(v interface{}) string {
		f, ok := v.(float64)
		if !ok {
			return ""
		}
		i := int(math.Round(f))
		if i < 0 || i >= len(bars) {
			return ""
		}
		return bars[i].Time.Format("Jan 02")
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s - Candlestick Chart (OHLC)", ticker),
		Width:  defaultWidth,
		Height: 600,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: labels,
			Range:          &chart.ContinuousRange{Min: -1, Max: float64(len(bars))},
		},
		YAxis: chart.YAxis{Name: "Price", GridMajorStyle: gridStyle()},
		Series: []chart.Series{
			candleSeries{name: ticker, bars: bars},
		},
	}
	return encode(graph)
}
