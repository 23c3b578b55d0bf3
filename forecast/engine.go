// Package forecast turns cached price history into forecasts: a direct
// multi-day forecast from a freshly trained model, and a recursive rollout
// of a previously saved one.
package forecast

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/lstm"
	"stockwave/metrics"
	"stockwave/models"
	"stockwave/scaler"
	"stockwave/service"
)

const (
	// MaxDays bounds both forecast modes.
	MaxDays = 730

	closeFeature = "Close"
)

// PriceSource supplies cached price history.
type PriceSource interface {
	Fetch(ctx context.Context, ticker, period string) (*models.PriceSeries, error)
}

// ModelStore persists trained models with their scalers.
type ModelStore interface {
	Exists(ticker string) bool
	Save(ticker string, model *lstm.Model, state scaler.State) error
	Load(ticker string) (*lstm.Model, scaler.State, error)
}

// Recorder receives an audit row for every served forecast.
type Recorder interface {
	Record(ctx context.Context, rec *models.ForecastRecord)
}

// Options configures training.
type Options struct {
	Period       string
	Window       int
	Hidden       int
	BatchSize    int
	Epochs       int
	Patience     int
	LearningRate float64
	Seed         int64
}

// DefaultOptions mirrors the service defaults: 2y of history, 60-day
// windows, 10 epochs with patience 3.
func DefaultOptions() Options {
	return Options{
		Period:       "2y",
		Window:       lstm.DefaultWindow,
		Hidden:       lstm.DefaultHidden,
		BatchSize:    lstm.DefaultBatchSize,
		Epochs:       10,
		Patience:     3,
		LearningRate: lstm.DefaultLearningRate,
		Seed:         42,
	}
}

type Engine struct {
	prices   PriceSource
	store    ModelStore
	recorder Recorder
	opts     Options
	logger   *zap.Logger
}

func NewEngine(prices PriceSource, store ModelStore, recorder Recorder, opts Options, logger *zap.Logger) *Engine {
	def := DefaultOptions()
	if opts.Period == "" {
		opts.Period = def.Period
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	return &Engine{
		prices:   prices,
		store:    store,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
	}
}

// Trained is the outcome of one training run.
type Trained struct {
	Series *models.PriceSeries
	Model  *lstm.Model
	Scaler scaler.State
	Scaled []float64
	Report lstm.Report
}

// FreshResult is a direct forecast of Horizon days after the last close.
type FreshResult struct {
	Ticker      string
	Horizon     int
	Historical  *models.PriceSeries
	Predictions []float64
	Report      lstm.Report
}

// RecursiveResult is an n-day rollout of a saved model.
type RecursiveResult struct {
	Ticker      string
	Days        int
	Historical  *models.PriceSeries
	Predictions []float64
}

func validateRequest(ticker string, days int) (string, error) {
	ticker = service.NormalizeTicker(ticker)
	if ticker == "" {
		return "", apperrors.New(apperrors.CodeInvalidRequest, "ticker is required")
	}
	if !service.ValidTicker(ticker) {
		return "", apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("invalid ticker %q", ticker))
	}
	if days < 1 || days > MaxDays {
		return "", apperrors.New(apperrors.CodeInvalidRequest,
			fmt.Sprintf("days must be between 1 and %d, got %d", MaxDays, days))
	}
	return ticker, nil
}

// Train fetches history, fits a scaler and a horizon-step model on it and
// saves both to the store.
func (e *Engine) Train(ctx context.Context, ticker string, horizon int) (*Trained, error) {
	ticker, err := validateRequest(ticker, horizon)
	if err != nil {
		return nil, err
	}
	trained, err := e.train(ctx, ticker, horizon)
	if err != nil {
		return nil, apperrors.Typed(err)
	}
	return trained, nil
}

func (e *Engine) train(ctx context.Context, ticker string, horizon int) (*Trained, error) {
	series, err := e.prices.Fetch(ctx, ticker, e.opts.Period)
	if err != nil {
		return nil, err
	}

	closes := series.Closes()
	if need := e.opts.Window + horizon; len(closes) <= need {
		return nil, apperrors.New(apperrors.CodeInsufficientHistory,
			fmt.Sprintf("%s has %d closes, need more than %d for a %d-day horizon",
				ticker, len(closes), need, horizon))
	}

	state, scaled, err := scaler.FitTransform(closeFeature, closes)
	if err != nil {
		return nil, err
	}
	samples, err := lstm.BuildTrainingPairs(scaled, e.opts.Window, horizon)
	if err != nil {
		return nil, err
	}

	model, err := lstm.New(lstm.Config{
		Window:       e.opts.Window,
		Horizon:      horizon,
		Hidden:       e.opts.Hidden,
		BatchSize:    e.opts.BatchSize,
		LearningRate: e.opts.LearningRate,
		Seed:         e.opts.Seed,
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "training cancelled", err)
	}

	start := time.Now()
	report, err := model.Train(samples, e.opts.Epochs, e.opts.Patience)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.TrainingDuration.WithLabelValues(metrics.HorizonBucket(horizon)).Observe(elapsed.Seconds())

	e.logger.Info("Model trained",
		zap.String("ticker", ticker),
		zap.Int("horizon", horizon),
		zap.Int("samples", report.Samples),
		zap.Int("epochs", report.Epochs),
		zap.Float64("final_loss", report.FinalLoss),
		zap.Bool("stopped_early", report.StoppedEarly),
		zap.Duration("duration", elapsed),
	)

	if err := e.store.Save(ticker, model, state); err != nil {
		return nil, err
	}

	return &Trained{Series: series, Model: model, Scaler: state, Scaled: scaled, Report: report}, nil
}

// ForecastFresh trains a model whose dense layer emits days outputs and
// predicts them in one pass from the last window of closes.
func (e *Engine) ForecastFresh(ctx context.Context, ticker string, days int) (*FreshResult, error) {
	start := time.Now()
	result, err := e.forecastFresh(ctx, ticker, days)
	e.observe(models.ForecastModeFresh, err)
	if err != nil {
		return nil, apperrors.Typed(err)
	}

	e.record(ctx, models.ForecastModeFresh, result.Historical, days, result.Predictions,
		result.Report.Epochs, result.Report.FinalLoss, time.Since(start))
	return result, nil
}

func (e *Engine) forecastFresh(ctx context.Context, ticker string, days int) (*FreshResult, error) {
	ticker, err := validateRequest(ticker, days)
	if err != nil {
		return nil, err
	}

	trained, err := e.train(ctx, ticker, days)
	if err != nil {
		return nil, err
	}

	last := trained.Scaled[len(trained.Scaled)-e.opts.Window:]
	scaledOut, err := trained.Model.PredictWindow(last)
	if err != nil {
		return nil, err
	}

	return &FreshResult{
		Ticker:      ticker,
		Horizon:     days,
		Historical:  trained.Series,
		Predictions: scaler.InverseTransform(trained.Scaler, scaledOut),
		Report:      trained.Report,
	}, nil
}

// ForecastRecursive rolls the saved model forward days steps. It fails with
// a model-not-found error before fetching anything when no model was saved.
func (e *Engine) ForecastRecursive(ctx context.Context, ticker string, days int) (*RecursiveResult, error) {
	start := time.Now()
	result, err := e.forecastRecursive(ctx, ticker, days)
	e.observe(models.ForecastModeRecursive, err)
	if err != nil {
		return nil, apperrors.Typed(err)
	}
	e.record(ctx, models.ForecastModeRecursive, result.Historical, days, result.Predictions, 0, 0, time.Since(start))
	return result, nil
}

func (e *Engine) forecastRecursive(ctx context.Context, ticker string, days int) (*RecursiveResult, error) {
	ticker, err := validateRequest(ticker, days)
	if err != nil {
		return nil, err
	}
	if !e.store.Exists(ticker) {
		return nil, apperrors.New(apperrors.CodeModelNotFound,
			fmt.Sprintf("no trained model for %s, request a fresh forecast first", ticker))
	}

	series, err := e.prices.Fetch(ctx, ticker, e.opts.Period)
	if err != nil {
		return nil, err
	}
	model, state, err := e.store.Load(ticker)
	if err != nil {
		return nil, err
	}

	window := model.Window()
	closes := series.Closes()
	if len(closes) < window {
		return nil, apperrors.New(apperrors.CodeInsufficientHistory,
			fmt.Sprintf("%s has %d closes, need at least %d", ticker, len(closes), window))
	}

	seed, err := scaler.Transform(state, closes[len(closes)-window:])
	if err != nil {
		return nil, err
	}
	scaledOut, err := Rollout(model, seed, days)
	if err != nil {
		return nil, err
	}

	return &RecursiveResult{
		Ticker:      ticker,
		Days:        days,
		Historical:  series,
		Predictions: scaler.InverseTransform(state, scaledOut),
	}, nil
}

func (e *Engine) observe(mode string, err error) {
	metrics.ForecastsTotal.WithLabelValues(mode, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()
}

func (e *Engine) record(ctx context.Context, mode string, series *models.PriceSeries, horizon int, predictions []float64, epochs int, loss float64, elapsed time.Duration) {
	if e.recorder == nil {
		return
	}
	var lastClose float64
	if n := series.Len(); n > 0 {
		lastClose = series.Bars[n-1].Close
	}
	e.recorder.Record(ctx, &models.ForecastRecord{
		Ticker:     series.Ticker,
		Mode:       mode,
		Horizon:    horizon,
		Period:     series.Period,
		LastClose:  lastClose,
		Prediction: predictions,
		Epochs:     epochs,
		FinalLoss:  loss,
		DurationMs: elapsed.Milliseconds(),
	})
}
