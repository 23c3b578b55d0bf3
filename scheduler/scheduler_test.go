package scheduler

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"stockwave/forecast"
	"stockwave/models"
)

type fakeRefresher struct {
	refreshed []string
	fail      map[string]bool
}

func (f *fakeRefresher) Refresh(ctx context.Context, ticker, period string) (*models.PriceSeries, error) {
	f.refreshed = append(f.refreshed, ticker+"/"+period)
	if f.fail[ticker] {
		return nil, errors.New("upstream down")
	}
	return &models.PriceSeries{Ticker: ticker, Period: period}, nil
}

type fakeTrainer struct {
	trained  []string
	horizons []int
}

func (f *fakeTrainer) Train(ctx context.Context, ticker string, horizon int) (*forecast.Trained, error) {
	f.trained = append(f.trained, ticker)
	f.horizons = append(f.horizons, horizon)
	return &forecast.Trained{}, nil
}

func TestRunNowSkipsFailedRefresh(t *testing.T) {
	prices := &fakeRefresher{fail: map[string]bool{"TSLA": true}}
	trainer := &fakeTrainer{}
	s := New(context.Background(), prices, trainer, []string{"AAPL", "TSLA", "MSFT"}, "2y", zap.NewNop())

	s.RunNow()

	if len(prices.refreshed) != 3 || prices.refreshed[0] != "AAPL/2y" {
		t.Errorf("unexpected refreshes %v", prices.refreshed)
	}
	if len(trainer.trained) != 2 || trainer.trained[0] != "AAPL" || trainer.trained[1] != "MSFT" {
		t.Errorf("unexpected retrains %v", trainer.trained)
	}
	for _, h := range trainer.horizons {
		if h != 1 {
			t.Errorf("expected one-step retraining, got horizon %d", h)
		}
	}
}

func TestRunNowStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prices := &fakeRefresher{}
	s := New(ctx, prices, &fakeTrainer{}, []string{"AAPL"}, "2y", zap.NewNop())

	s.RunNow()
	if len(prices.refreshed) != 0 {
		t.Errorf("cancelled scheduler should not refresh, got %v", prices.refreshed)
	}
}

func TestRegister(t *testing.T) {
	s := New(context.Background(), &fakeRefresher{}, &fakeTrainer{}, nil, "2y", zap.NewNop())
	if err := s.Register("0 30 22 * * 1-5"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(s.Cron.Entries()) != 1 {
		t.Errorf("expected one cron entry, got %d", len(s.Cron.Entries()))
	}
	if err := s.Register("not a cron"); err == nil {
		t.Error("expected error for invalid spec")
	}
	if err := s.Register(""); err != nil {
		t.Errorf("empty spec should disable the job, got %v", err)
	}
}
