// Package scheduler runs the periodic cache refresh and retraining job.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"stockwave/forecast"
	"stockwave/models"
)

// Refresher re-downloads a cached price series.
type Refresher interface {
	Refresh(ctx context.Context, ticker, period string) (*models.PriceSeries, error)
}

// Trainer retrains and saves a model.
type Trainer interface {
	Train(ctx context.Context, ticker string, horizon int) (*forecast.Trained, error)
}

// Scheduler refreshes the watchlist on a cron schedule and retrains the
// one-step models the recursive forecast depends on.
type Scheduler struct {
	Cron    *cron.Cron
	prices  Refresher
	trainer Trainer
	tickers []string
	period  string
	ctx     context.Context
	logger  *zap.Logger
}

func New(ctx context.Context, prices Refresher, trainer Trainer, tickers []string, period string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		prices:  prices,
		trainer: trainer,
		tickers: tickers,
		period:  period,
		ctx:     ctx,
		logger:  logger,
	}
}

// Register adds the refresh job. An empty spec disables it.
func (s *Scheduler) Register(spec string) error {
	if spec == "" {
		s.logger.Info("Refresh job disabled")
		return nil
	}
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	s.logger.Info("Refresh job registered", zap.String("cron", spec), zap.Strings("tickers", s.tickers))
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow refreshes and retrains every ticker sequentially. A failing ticker
// is logged and skipped.
func (s *Scheduler) RunNow() {
	s.logger.Info("Running refresh task", zap.Int("tickers", len(s.tickers)))
	var refreshed, trained int
	for _, ticker := range s.tickers {
		if s.ctx.Err() != nil {
			return
		}
		if _, err := s.prices.Refresh(s.ctx, ticker, s.period); err != nil {
			s.logger.Error("Refresh failed", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		refreshed++

		if _, err := s.trainer.Train(s.ctx, ticker, 1); err != nil {
			s.logger.Error("Retrain failed", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		trained++
	}
	s.logger.Info("Refresh task finished", zap.Int("refreshed", refreshed), zap.Int("trained", trained))
}
