package service

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stockwave/apperrors"
	"stockwave/metrics"
	wavemodels "stockwave/models"
)

// PolygonProvider serves bars, snapshots and ticker details from Polygon.io.
// Every call waits on a shared limiter so the free tier quota is respected.
type PolygonProvider struct {
	client  *polygon.Client
	limiter *rate.Limiter
	market  *time.Location
	logger  *zap.Logger
}

func NewPolygonProvider(apiKey string, perMinute int, logger *zap.Logger) *PolygonProvider {
	if perMinute <= 0 {
		perMinute = 5
	}
	market, err := time.LoadLocation("America/New_York")
	if err != nil {
		market = time.FixedZone("EST", -5*60*60)
	}
	return &PolygonProvider{
		client:  polygon.New(apiKey),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		market:  market,
		logger:  logger,
	}
}

func (p *PolygonProvider) Name() string { return "polygon" }

func (p *PolygonProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeDataUnavailable, "polygon rate limit wait", err)
	}
	return nil
}

func (p *PolygonProvider) observe(call string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.UpstreamRequests.WithLabelValues(p.Name(), call, outcome).Inc()
}

// History lists adjusted day aggregates from the start of period until today.
func (p *PolygonProvider) History(ctx context.Context, ticker, period string) ([]wavemodels.Bar, error) {
	now := time.Now()
	from, err := periodStart(period, now)
	if err != nil {
		return nil, err
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   models.Timespan("day"),
		From:       models.Millis(from),
		To:         models.Millis(now),
	}.
		WithAdjusted(true).
		WithOrder(models.Order("asc")).
		WithLimit(50000)

	it := p.client.ListAggs(ctx, params)

	var bars []wavemodels.Bar
	for it.Next() {
		agg := it.Item()
		local := time.Time(agg.Timestamp).In(p.market)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(bars); n > 0 && !bars[n-1].Time.Before(day) {
			bars[n-1] = wavemodels.Bar{Time: day, Open: agg.Open, High: agg.High, Low: agg.Low, Close: agg.Close, Volume: agg.Volume}
			continue
		}
		bars = append(bars, wavemodels.Bar{
			Time:   day,
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}
	err = it.Err()
	p.observe("history", err)
	if err != nil {
		p.logger.Warn("Polygon aggregates failed", zap.String("ticker", ticker), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.CodeDataUnavailable, "polygon aggregates for "+ticker, err)
	}
	return bars, nil
}

// Quote uses the ticker snapshot: today's open and the latest day close.
func (p *PolygonProvider) Quote(ctx context.Context, ticker string) (*wavemodels.Quote, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	params := models.GetTickerSnapshotParams{
		Ticker:     ticker,
		Locale:     "us",
		MarketType: "stocks",
	}
	res, err := p.client.GetTickerSnapshot(ctx, &params)
	p.observe("quote", err)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataUnavailable, "polygon snapshot for "+ticker, err)
	}

	day := res.Snapshot.Day
	if day.Open == 0 || day.Close == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable, fmt.Sprintf("polygon: empty snapshot for %s", ticker))
	}
	return &wavemodels.Quote{Symbol: ticker, Price: day.Close, Open: day.Open}, nil
}

func (p *PolygonProvider) CompanyInfo(ctx context.Context, ticker string) (*wavemodels.CompanyInfo, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	params := models.GetTickerDetailsParams{
		Ticker: ticker,
	}
	res, err := p.client.GetTickerDetails(ctx, &params)
	p.observe("company", err)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataUnavailable, "polygon ticker details for "+ticker, err)
	}

	d := res.Results
	return &wavemodels.CompanyInfo{
		Symbol:      ticker,
		Name:        wavemodels.StringPtr(d.Name),
		Industry:    wavemodels.StringPtr(d.SICDescription),
		Website:     wavemodels.StringPtr(d.HomepageURL),
		Description: wavemodels.StringPtr(d.Description),
		MarketCap:   wavemodels.FloatPtr(d.MarketCap),
	}, nil
}
