// Package market builds the trending and top-loser boards from intraday
// quotes.
package market

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockwave/models"
)

var (
	TrendingTickers = []string{"AAPL", "TSLA", "AMZN", "GOOGL", "MSFT", "NFLX", "NVDA", "META", "INTC", "BA", "SPY", "XOM"}
	LoserTickers    = []string{"BA", "XOM", "NVDA", "GOOGL", "AMZN", "NFLX", "INTC"}
)

const maxParallelQuotes = 4

// QuoteSource returns the session open and latest price of a ticker.
type QuoteSource interface {
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
}

type Movers struct {
	source   QuoteSource
	logger   *zap.Logger
	trending []string
	losers   []string
}

func NewMovers(source QuoteSource, logger *zap.Logger) *Movers {
	return &Movers{
		source:   source,
		logger:   logger,
		trending: TrendingTickers,
		losers:   LoserTickers,
	}
}

func (m *Movers) Trending(ctx context.Context) []models.Quote {
	return m.Quotes(ctx, m.trending)
}

func (m *Movers) TopLosers(ctx context.Context) []models.Quote {
	return m.Quotes(ctx, m.losers)
}

// Quotes fetches tickers concurrently and returns them in input order.
// Tickers that fail or have no intraday data are left out.
func (m *Movers) Quotes(ctx context.Context, tickers []string) []models.Quote {
	results := make([]*models.Quote, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQuotes)
	for i, ticker := range tickers {
		g.Go(func() error {
			q, err := m.source.Quote(gctx, ticker)
			if err != nil {
				m.logger.Warn("No recent data", zap.String("symbol", ticker), zap.Error(err))
				return nil
			}
			results[i] = withChange(*q)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Quote, 0, len(tickers))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}

// withChange rounds price and open to cents and derives the percent change
// from the rounded values, formatted with an explicit sign.
func withChange(q models.Quote) *models.Quote {
	price := decimal.NewFromFloat(q.Price).Round(2)
	open := decimal.NewFromFloat(q.Open).Round(2)

	q.Price = price.InexactFloat64()
	q.Open = open.InexactFloat64()
	if open.IsZero() {
		q.ChangePercent = 0
		q.Change = "+0%"
		return &q
	}

	pct := price.Sub(open).Div(open).Mul(decimal.NewFromInt(100)).Round(2)
	q.ChangePercent = pct.InexactFloat64()
	sign := ""
	if !pct.IsNegative() {
		sign = "+"
	}
	q.Change = sign + pct.String() + "%"
	return &q
}
