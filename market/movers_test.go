package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"stockwave/models"
)

type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]models.Quote
	seen   []string
}

func (f *fakeQuotes) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	f.mu.Lock()
	f.seen = append(f.seen, ticker)
	f.mu.Unlock()
	q, ok := f.quotes[ticker]
	if !ok {
		return nil, errors.New("no data")
	}
	return &q, nil
}

func TestQuotesKeepOrderAndSkipFailures(t *testing.T) {
	src := &fakeQuotes{quotes: map[string]models.Quote{
		"AAPL": {Symbol: "AAPL", Price: 190.456, Open: 188.0},
		"TSLA": {Symbol: "TSLA", Price: 240.0, Open: 250.0},
		"SPY":  {Symbol: "SPY", Price: 500.0, Open: 500.0},
	}}
	m := NewMovers(src, zap.NewNop())

	got := m.Quotes(context.Background(), []string{"TSLA", "MISSING", "AAPL", "SPY"})
	if len(got) != 3 {
		t.Fatalf("expected 3 quotes, got %d: %+v", len(got), got)
	}
	if got[0].Symbol != "TSLA" || got[1].Symbol != "AAPL" || got[2].Symbol != "SPY" {
		t.Errorf("order not preserved: %+v", got)
	}
	if len(src.seen) != 4 {
		t.Errorf("expected every ticker to be requested, got %v", src.seen)
	}

	if got[0].Change != "-4%" || got[0].ChangePercent != -4 {
		t.Errorf("TSLA change = %q (%v)", got[0].Change, got[0].ChangePercent)
	}
	if got[1].Price != 190.46 || got[1].Change != "+1.31%" {
		t.Errorf("AAPL = %+v", got[1])
	}
	if got[2].Change != "+0%" {
		t.Errorf("flat change = %q", got[2].Change)
	}
}

func TestBoardsUseTheirLists(t *testing.T) {
	src := &fakeQuotes{quotes: map[string]models.Quote{}}
	m := NewMovers(src, zap.NewNop())

	if got := m.Trending(context.Background()); len(got) != 0 {
		t.Errorf("expected empty board, got %+v", got)
	}
	if len(src.seen) != len(TrendingTickers) {
		t.Errorf("trending requested %d tickers, want %d", len(src.seen), len(TrendingTickers))
	}

	src.seen = nil
	m.TopLosers(context.Background())
	if len(src.seen) != len(LoserTickers) {
		t.Errorf("losers requested %d tickers, want %d", len(src.seen), len(LoserTickers))
	}
}
