package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/models"
	"stockwave/registry"
)

type fakePrices struct {
	calls  int
	closes []float64
	err    error
}

func (f *fakePrices) Fetch(ctx context.Context, ticker, period string) (*models.PriceSeries, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(f.closes))
	for i, c := range f.closes {
		bars[i] = models.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return &models.PriceSeries{Ticker: ticker, Period: period, Bars: bars}, nil
}

type captureRecorder struct {
	records []*models.ForecastRecord
}

func (c *captureRecorder) Record(ctx context.Context, rec *models.ForecastRecord) {
	c.records = append(c.records, rec)
}

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/5) + float64(i)/10
	}
	return out
}

func newTestEngine(t *testing.T, prices *fakePrices, rec Recorder) (*Engine, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	opts := Options{Period: "2y", Window: 10, Hidden: 3, BatchSize: 8, Epochs: 2, Patience: 3, LearningRate: 0.01, Seed: 3}
	return NewEngine(prices, reg, rec, opts, zap.NewNop()), reg
}

func TestWindowKeepsFixedLength(t *testing.T) {
	w := NewWindow([]float64{1, 2, 3})
	w.Push(4)
	w.Push(5)

	got := w.Values(nil)
	want := []float64{3, 4, 5}
	if w.Len() != 3 || len(got) != 3 {
		t.Fatalf("window length changed: %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Values() = %v, want %v", got, want)
		}
	}
}

type extrapolator struct{ window int }

func (e extrapolator) Window() int { return e.window }

func (e extrapolator) PredictWindow(w []float64) ([]float64, error) {
	n := len(w)
	return []float64{2*w[n-1] - w[n-2], 0}, nil
}

func TestRolloutConditionsOnPriorPredictions(t *testing.T) {
	ramp := make([]float64, 90)
	for i := range ramp {
		ramp[i] = float64(i) / 89
	}
	step := ramp[1] - ramp[0]

	out, err := Rollout(extrapolator{window: 60}, ramp[30:], 20)
	if err != nil {
		t.Fatalf("Rollout: %v", err)
	}
	if len(out) != 20 {
		t.Fatalf("expected 20 predictions, got %d", len(out))
	}
	for i, v := range out {
		want := ramp[89] + float64(i+1)*step
		if math.Abs(v-want) > 1e-9 {
			t.Errorf("step %d: got %v, want %v", i, v, want)
		}
	}
}

func TestRolloutRejectsWrongSeed(t *testing.T) {
	if _, err := Rollout(extrapolator{window: 60}, make([]float64, 59), 3); !errors.Is(err, apperrors.ErrStateMismatch) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
}

func TestInvalidRequestsNeverFetch(t *testing.T) {
	prices := &fakePrices{closes: wave(100)}
	e, _ := newTestEngine(t, prices, nil)
	ctx := context.Background()

	cases := []struct {
		ticker string
		days   int
	}{
		{"AAPL", 0},
		{"AAPL", 800},
		{"", 30},
		{"AA PL", 30},
	}
	for _, c := range cases {
		if _, err := e.ForecastFresh(ctx, c.ticker, c.days); !errors.Is(err, apperrors.ErrInvalidRequest) {
			t.Errorf("fresh(%q, %d): expected invalid request, got %v", c.ticker, c.days, err)
		}
		if _, err := e.ForecastRecursive(ctx, c.ticker, c.days); !errors.Is(err, apperrors.ErrInvalidRequest) {
			t.Errorf("recursive(%q, %d): expected invalid request, got %v", c.ticker, c.days, err)
		}
	}
	if prices.calls != 0 {
		t.Errorf("invalid requests fetched %d times", prices.calls)
	}
}

func TestRecursiveWithoutModel(t *testing.T) {
	prices := &fakePrices{closes: wave(100)}
	e, _ := newTestEngine(t, prices, nil)

	_, err := e.ForecastRecursive(context.Background(), "NEWCO", 5)
	if !errors.Is(err, apperrors.ErrModelNotFound) {
		t.Fatalf("expected model not found, got %v", err)
	}
	if prices.calls != 0 {
		t.Errorf("expected no fetch, got %d", prices.calls)
	}
}

func TestFreshThenRecursive(t *testing.T) {
	prices := &fakePrices{closes: wave(60)}
	rec := &captureRecorder{}
	e, reg := newTestEngine(t, prices, rec)
	ctx := context.Background()

	fresh, err := e.ForecastFresh(ctx, "aapl", 5)
	if err != nil {
		t.Fatalf("ForecastFresh: %v", err)
	}
	if fresh.Ticker != "AAPL" || len(fresh.Predictions) != 5 {
		t.Fatalf("unexpected fresh result %+v", fresh)
	}
	if fresh.Historical.Len() != 60 {
		t.Errorf("expected full history, got %d bars", fresh.Historical.Len())
	}
	for _, p := range fresh.Predictions {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("non-finite prediction %v", p)
		}
	}
	if !reg.Exists("AAPL") {
		t.Fatal("fresh forecast should persist the model")
	}

	rolled, err := e.ForecastRecursive(ctx, "AAPL", 7)
	if err != nil {
		t.Fatalf("ForecastRecursive: %v", err)
	}
	if len(rolled.Predictions) != 7 {
		t.Fatalf("expected 7 predictions, got %d", len(rolled.Predictions))
	}

	if len(rec.records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(rec.records))
	}
	if rec.records[0].Mode != models.ForecastModeFresh || rec.records[0].Epochs == 0 {
		t.Errorf("unexpected fresh record %+v", rec.records[0])
	}
	if rec.records[1].Mode != models.ForecastModeRecursive || rec.records[1].Horizon != 7 {
		t.Errorf("unexpected recursive record %+v", rec.records[1])
	}
}

func TestFreshInsufficientHistory(t *testing.T) {
	tests := []struct {
		name   string
		points int
		days   int
	}{
		{"shorter than window", 8, 1},
		{"no training pair", 15, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reg := newTestEngine(t, &fakePrices{closes: wave(tt.points)}, nil)
			_, err := e.ForecastFresh(context.Background(), "AAPL", tt.days)
			if !errors.Is(err, apperrors.ErrInsufficientHistory) {
				t.Fatalf("expected insufficient history, got %v", err)
			}
			if reg.Exists("AAPL") {
				t.Error("nothing should be saved")
			}
		})
	}
}

func TestFreshDegenerateSeries(t *testing.T) {
	flat := make([]float64, 100)
	for i := range flat {
		flat[i] = 50
	}
	e, _ := newTestEngine(t, &fakePrices{closes: flat}, nil)
	_, err := e.ForecastFresh(context.Background(), "FLAT", 3)
	if !errors.Is(err, apperrors.ErrDegenerateSeries) {
		t.Fatalf("expected degenerate series, got %v", err)
	}
}

func TestRecursiveInsufficientHistory(t *testing.T) {
	prices := &fakePrices{closes: wave(40)}
	e, _ := newTestEngine(t, prices, nil)
	ctx := context.Background()

	if _, err := e.Train(ctx, "MSFT", 1); err != nil {
		t.Fatalf("Train: %v", err)
	}
	prices.closes = wave(6)
	if _, err := e.ForecastRecursive(ctx, "MSFT", 3); !errors.Is(err, apperrors.ErrInsufficientHistory) {
		t.Fatalf("expected insufficient history, got %v", err)
	}
}

func TestFetchErrorsPassThrough(t *testing.T) {
	prices := &fakePrices{err: apperrors.New(apperrors.CodeDataUnavailable, "no data")}
	e, _ := newTestEngine(t, prices, nil)
	if _, err := e.ForecastFresh(context.Background(), "GONE", 3); !errors.Is(err, apperrors.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
}

func TestUnknownErrorsAreTypedAtBoundary(t *testing.T) {
	prices := &fakePrices{err: errors.New("disk full")}
	e, _ := newTestEngine(t, prices, nil)

	_, err := e.ForecastFresh(context.Background(), "AAPL", 3)
	var typed *apperrors.Error
	if !errors.As(err, &typed) || typed.Code != apperrors.CodeInternal {
		t.Fatalf("fresh: expected internal error, got %v", err)
	}
	if _, err := e.Train(context.Background(), "AAPL", 1); !errors.As(err, &typed) || typed.Code != apperrors.CodeInternal {
		t.Fatalf("train: expected internal error, got %v", err)
	}
}
