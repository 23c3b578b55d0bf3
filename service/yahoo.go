package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/metrics"
	"stockwave/models"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider reads the public Yahoo Finance chart API.
type YahooProvider struct {
	Client  *http.Client
	BaseURL string
	logger  *zap.Logger
}

// NewYahooProvider creates a Yahoo provider, optionally routed through proxyURL.
func NewYahooProvider(proxyURL string, logger *zap.Logger) *YahooProvider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooProvider{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: yahooBaseURL,
		logger:  logger,
	}
}

func (p *YahooProvider) Name() string { return "yahoo" }

type yahooAPIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type yahooChart struct {
	Chart struct {
		Result []yahooResult  `json:"result"`
		Error  *yahooAPIError `json:"error"`
	} `json:"chart"`
}

type yahooSummary struct {
	QuoteSummary struct {
		Result []yahooProfile `json:"result"`
		Error  *yahooAPIError `json:"error"`
	} `json:"quoteSummary"`
}

type yahooProfile struct {
	AssetProfile struct {
		LongBusinessSummary string `json:"longBusinessSummary"`
		Industry            string `json:"industry"`
		Sector              string `json:"sector"`
		Website             string `json:"website"`
	} `json:"assetProfile"`
	Price struct {
		LongName  string `json:"longName"`
		ShortName string `json:"shortName"`
		MarketCap struct {
			Raw float64 `json:"raw"`
		} `json:"marketCap"`
	} `json:"price"`
}

type yahooResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		LongName  string `json:"longName"`
		ShortName string `json:"shortName"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil || math.IsNaN(*values[i]) {
		return 0, false
	}
	return *values[i], true
}

// get performs one upstream call and decodes the JSON body into out.
func (p *YahooProvider) get(ctx context.Context, call, ticker, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDataUnavailable, "yahoo request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(p.Name(), call, "error").Inc()
		return apperrors.Wrap(apperrors.CodeDataUnavailable, "yahoo fetch", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(p.Name(), call, "error").Inc()
		return apperrors.Wrap(apperrors.CodeDataUnavailable, "yahoo read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequests.WithLabelValues(p.Name(), call, "error").Inc()
		p.logger.Warn("Yahoo returned non-200",
			zap.String("ticker", ticker),
			zap.String("call", call),
			zap.Int("status", resp.StatusCode),
		)
		return apperrors.New(apperrors.CodeDataUnavailable,
			fmt.Sprintf("yahoo: status %d for %s", resp.StatusCode, ticker))
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.UpstreamRequests.WithLabelValues(p.Name(), call, "error").Inc()
		return apperrors.Wrap(apperrors.CodeDataUnavailable, "yahoo decode", err)
	}
	metrics.UpstreamRequests.WithLabelValues(p.Name(), call, "ok").Inc()
	return nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, call, ticker, interval, rng string) (*yahooResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		p.BaseURL, url.PathEscape(ticker), interval, rng)

	var chart yahooChart
	if err := p.get(ctx, call, ticker, u, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, apperrors.New(apperrors.CodeDataUnavailable,
			fmt.Sprintf("yahoo api error: %s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable, "yahoo: no data returned for "+ticker)
	}
	return &chart.Chart.Result[0], nil
}

func (p *YahooProvider) fetchProfile(ctx context.Context, ticker string) (*yahooProfile, error) {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=assetProfile,price",
		p.BaseURL, url.PathEscape(ticker))

	var summary yahooSummary
	if err := p.get(ctx, "profile", ticker, u, &summary); err != nil {
		return nil, err
	}
	if summary.QuoteSummary.Error != nil {
		return nil, apperrors.New(apperrors.CodeDataUnavailable,
			fmt.Sprintf("yahoo api error: %s", summary.QuoteSummary.Error.Description))
	}
	if len(summary.QuoteSummary.Result) == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable, "yahoo: no profile for "+ticker)
	}
	return &summary.QuoteSummary.Result[0], nil
}

// History returns daily bars for period, oldest first. Bars with no close are
// skipped and duplicate days keep the last bar seen.
func (p *YahooProvider) History(ctx context.Context, ticker, period string) ([]models.Bar, error) {
	if !ValidPeriod(period) {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("unsupported period %q", period))
	}
	result, err := p.fetchChart(ctx, "history", ticker, "1d", period)
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable, "yahoo: no quotes for "+ticker)
	}

	quote := result.Indicators.Quote[0]
	byDay := make(map[time.Time]models.Bar, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c, ok := at(quote.Close, i)
		if !ok {
			continue
		}
		o, _ := at(quote.Open, i)
		h, _ := at(quote.High, i)
		l, _ := at(quote.Low, i)
		v, _ := at(quote.Volume, i)
		day := dailyBar(ts, result.Meta.GMTOffset)
		byDay[day] = models.Bar{Time: day, Open: o, High: h, Low: l, Close: c, Volume: v}
	}

	bars := make([]models.Bar, 0, len(byDay))
	for _, b := range byDay {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// Quote returns the last price and the session open from one-minute bars.
func (p *YahooProvider) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	result, err := p.fetchChart(ctx, "quote", ticker, "1m", "1d")
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable, "yahoo: no intraday data for "+ticker)
	}
	quote := result.Indicators.Quote[0]

	var open, last float64
	var haveOpen, haveLast bool
	for i := range result.Timestamp {
		if o, ok := at(quote.Open, i); ok && !haveOpen {
			open, haveOpen = o, true
		}
		if c, ok := at(quote.Close, i); ok {
			last, haveLast = c, true
		}
	}
	if !haveOpen || !haveLast || open == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable, "yahoo: no intraday data for "+ticker)
	}
	return &models.Quote{Symbol: ticker, Price: last, Open: open}, nil
}

// CompanyInfo combines the quoteSummary profile (business summary, sector,
// industry, website, market cap) with the chart metadata name. The profile
// endpoint is sometimes refused without a session cookie; the name from the
// chart is still returned then.
func (p *YahooProvider) CompanyInfo(ctx context.Context, ticker string) (*models.CompanyInfo, error) {
	info := &models.CompanyInfo{Symbol: ticker}

	profile, profileErr := p.fetchProfile(ctx, ticker)
	if profileErr != nil {
		p.logger.Debug("Yahoo profile unavailable", zap.String("ticker", ticker), zap.Error(profileErr))
	} else {
		name := profile.Price.LongName
		if name == "" {
			name = profile.Price.ShortName
		}
		info.Name = models.StringPtr(name)
		info.Sector = models.StringPtr(profile.AssetProfile.Sector)
		info.Industry = models.StringPtr(profile.AssetProfile.Industry)
		info.Website = models.StringPtr(profile.AssetProfile.Website)
		info.Description = models.StringPtr(profile.AssetProfile.LongBusinessSummary)
		info.MarketCap = models.FloatPtr(profile.Price.MarketCap.Raw)
	}
	if info.Name != nil {
		return info, nil
	}

	result, err := p.fetchChart(ctx, "company", ticker, "1d", "5d")
	if err != nil {
		if profileErr == nil {
			return info, nil
		}
		return nil, err
	}
	name := result.Meta.ShortName
	if name == "" {
		name = result.Meta.LongName
	}
	info.Name = models.StringPtr(name)
	return info, nil
}
