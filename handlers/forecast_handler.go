package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stockwave/apperrors"
	"stockwave/charts"
	"stockwave/forecast"
	"stockwave/lstm"
	"stockwave/metrics"
	"stockwave/models"
	"stockwave/service"
)

const defaultDays = 30

// Forecaster is the forecasting pipeline.
type Forecaster interface {
	ForecastFresh(ctx context.Context, ticker string, days int) (*forecast.FreshResult, error)
	ForecastRecursive(ctx context.Context, ticker string, days int) (*forecast.RecursiveResult, error)
}

// CompanySource supplies descriptive company metadata.
type CompanySource interface {
	CompanyInfo(ctx context.Context, ticker string) (*models.CompanyInfo, error)
}

// ForecastHandler serves the prediction endpoints. Training runs hold one of
// a fixed number of slots, and identical concurrent requests share one run.
type ForecastHandler struct {
	engine  Forecaster
	company CompanySource
	slots   chan struct{}
	group   singleflight.Group
	logger  *zap.Logger
}

func NewForecastHandler(engine Forecaster, company CompanySource, maxConcurrentTraining int, logger *zap.Logger) *ForecastHandler {
	if maxConcurrentTraining <= 0 {
		maxConcurrentTraining = 1
	}
	return &ForecastHandler{
		engine:  engine,
		company: company,
		slots:   make(chan struct{}, maxConcurrentTraining),
		logger:  logger,
	}
}

// PredictResponse is the body of /api/predict. Charts that cannot be drawn
// for the data at hand are omitted.
type PredictResponse struct {
	Ticker               string              `json:"ticker"`
	Days                 int                 `json:"days"`
	Historical           []models.Bar        `json:"historical"`
	Predictions          []float64           `json:"predictions"`
	PriceComparisonGraph string              `json:"price_comparison_graph,omitempty"`
	CandlestickChart     string              `json:"candlestick_chart,omitempty"`
	NextDaysChart        string              `json:"next_30_days_chart,omitempty"`
	OneYearChart         string              `json:"one_year_comparison_chart,omitempty"`
	Info                 *models.CompanyInfo `json:"info,omitempty"`
	Training             lstm.Report         `json:"training"`
}

// RecursiveResponse is the body of /api/forecast.
type RecursiveResponse struct {
	Ticker        string    `json:"ticker"`
	Days          int       `json:"days"`
	Predictions   []float64 `json:"predictions"`
	NextDaysChart string    `json:"next_30_days_chart,omitempty"`
}

func parseRequest(c *gin.Context) (string, int, error) {
	ticker := service.NormalizeTicker(c.Query("ticker"))
	if ticker == "" {
		return "", 0, apperrors.New(apperrors.CodeInvalidRequest, "ticker is required")
	}
	raw := strings.TrimSpace(c.DefaultQuery("days", strconv.Itoa(defaultDays)))
	days, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("days must be an integer, got %q", raw))
	}
	return ticker, days, nil
}

func (h *ForecastHandler) acquire(ctx context.Context) (func(), error) {
	select {
	case h.slots <- struct{}{}:
		metrics.TrainingSlotsInUse.Inc()
		return func() {
			<-h.slots
			metrics.TrainingSlotsInUse.Dec()
		}, nil
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CodeInternal, "waiting for a training slot", ctx.Err())
	}
}

// HandlePredict trains a fresh model and returns the forecast with charts.
func (h *ForecastHandler) HandlePredict(c *gin.Context) {
	ticker, days, err := parseRequest(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	reqCtx := c.Request.Context()
	key := fmt.Sprintf("%s|%d", ticker, days)
	// the run is shared by every caller with this key, so it is detached
	// from any single request
	runCtx := context.WithoutCancel(reqCtx)
	ch := h.group.DoChan(key, func() (interface{}, error) {
		release, err := h.acquire(runCtx)
		if err != nil {
			return nil, err
		}
		defer release()

		result, err := h.engine.ForecastFresh(runCtx, ticker, days)
		if err != nil {
			return nil, err
		}
		return h.buildPredictResponse(runCtx, result), nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-reqCtx.Done():
		h.logger.Info("Client left before forecast finished", zap.String("key", key), zap.Error(reqCtx.Err()))
		respondError(c, h.logger, apperrors.Wrap(apperrors.CodeInternal, "request cancelled", reqCtx.Err()))
		return
	}
	if res.Err != nil {
		respondError(c, h.logger, res.Err)
		return
	}
	if res.Shared {
		h.logger.Debug("Shared forecast run", zap.String("key", key))
	}

	c.JSON(http.StatusOK, res.Val.(*PredictResponse))
}

func (h *ForecastHandler) buildPredictResponse(ctx context.Context, result *forecast.FreshResult) *PredictResponse {
	closes := result.Historical.Closes()
	resp := &PredictResponse{
		Ticker:      result.Ticker,
		Days:        result.Horizon,
		Historical:  result.Historical.Bars,
		Predictions: result.Predictions,
		Training:    result.Report,
	}

	resp.PriceComparisonGraph = h.chart("price comparison", result.Ticker, func() (string, error) {
		return charts.PriceComparison(result.Ticker, closes, result.Predictions)
	})
	resp.CandlestickChart = h.chart("candlestick", result.Ticker, func() (string, error) {
		return charts.Candlestick(result.Ticker, result.Historical.Bars)
	})
	resp.NextDaysChart = h.chart("next days", result.Ticker, func() (string, error) {
		return charts.NextDays(result.Ticker, result.Predictions)
	})
	resp.OneYearChart = h.chart("one year overlay", result.Ticker, func() (string, error) {
		return charts.OneYearOverlay(result.Ticker, closes, result.Predictions)
	})

	if h.company != nil {
		info, err := h.company.CompanyInfo(ctx, result.Ticker)
		if err != nil {
			h.logger.Warn("Company info unavailable", zap.String("ticker", result.Ticker), zap.Error(err))
		} else {
			resp.Info = info
		}
	}
	return resp
}

func (h *ForecastHandler) chart(name, ticker string, render func() (string, error)) string {
	img, err := render()
	if err == nil {
		return img
	}
	if !errors.Is(err, charts.ErrNotEnoughData) {
		h.logger.Warn("Chart rendering failed",
			zap.String("chart", name),
			zap.String("ticker", ticker),
			zap.Error(err),
		)
	}
	return ""
}

// HandleForecast rolls the saved model forward without retraining.
func (h *ForecastHandler) HandleForecast(c *gin.Context) {
	ticker, days, err := parseRequest(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.engine.ForecastRecursive(c.Request.Context(), ticker, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, &RecursiveResponse{
		Ticker:      result.Ticker,
		Days:        result.Days,
		Predictions: result.Predictions,
		NextDaysChart: h.chart("next days", result.Ticker, func() (string, error) {
			return charts.NextDays(result.Ticker, result.Predictions)
		}),
	})
}
