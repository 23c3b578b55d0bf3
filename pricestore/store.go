// Package pricestore fetches daily price series from a market data provider
// and caches them as one CSV file per ticker and period.
package pricestore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/metrics"
	"stockwave/models"
	"stockwave/service"
)

const timeLayout = "2006-01-02 15:04:05"

var header = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// HistorySource is the part of a provider the store needs.
type HistorySource interface {
	Name() string
	History(ctx context.Context, ticker, period string) ([]models.Bar, error)
}

// Store is a read-through CSV cache in front of a HistorySource. A zero
// maxAge means cached files never expire.
type Store struct {
	dir      string
	provider HistorySource
	maxAge   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func New(dir string, provider HistorySource, maxAge time.Duration, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	return &Store{
		dir:      dir,
		provider: provider,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Token maps a ticker onto a filesystem-safe, upper-case name component.
// Only '.' is rewritten (to '_'), and '_' never occurs in a valid ticker,
// so distinct valid tickers always get distinct tokens.
func Token(ticker string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ticker) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '^', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Path is the cache file for (ticker, period).
func (s *Store) Path(ticker, period string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", Token(ticker), period))
}

// Fetch returns the cached series when present and fresh, otherwise it pulls
// from the provider and writes the cache.
func (s *Store) Fetch(ctx context.Context, ticker, period string) (*models.PriceSeries, error) {
	ticker, err := validate(ticker, period)
	if err != nil {
		return nil, err
	}

	path := s.Path(ticker, period)
	if info, statErr := os.Stat(path); statErr == nil {
		if s.maxAge > 0 && s.now().Sub(info.ModTime()) > s.maxAge {
			metrics.PriceCacheLookups.WithLabelValues("stale").Inc()
			s.logger.Debug("Price cache stale", zap.String("path", path), zap.Time("modified", info.ModTime()))
			return s.download(ctx, ticker, period)
		}

		series, readErr := readCSV(path, ticker, period)
		if readErr == nil {
			metrics.PriceCacheLookups.WithLabelValues("hit").Inc()
			s.logger.Debug("Loading cached price series", zap.String("path", path))
			return series, nil
		}
		s.logger.Warn("Discarding unreadable price cache", zap.String("path", path), zap.Error(readErr))
	}

	metrics.PriceCacheLookups.WithLabelValues("miss").Inc()
	return s.download(ctx, ticker, period)
}

// Refresh always goes to the provider and overwrites the cache.
func (s *Store) Refresh(ctx context.Context, ticker, period string) (*models.PriceSeries, error) {
	ticker, err := validate(ticker, period)
	if err != nil {
		return nil, err
	}
	metrics.PriceCacheLookups.WithLabelValues("refresh").Inc()
	return s.download(ctx, ticker, period)
}

func validate(ticker, period string) (string, error) {
	ticker = service.NormalizeTicker(ticker)
	if !service.ValidTicker(ticker) {
		return "", apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("invalid ticker %q", ticker))
	}
	if !service.ValidPeriod(period) {
		return "", apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("unsupported period %q", period))
	}
	return ticker, nil
}

func (s *Store) download(ctx context.Context, ticker, period string) (*models.PriceSeries, error) {
	s.logger.Info("Fetching price series",
		zap.String("ticker", ticker),
		zap.String("period", period),
		zap.String("provider", s.provider.Name()),
	)

	bars, err := s.provider.History(ctx, ticker, period)
	if err != nil {
		var typed *apperrors.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeDataUnavailable, "history for "+ticker, err)
	}

	bars = normalize(bars)
	if len(bars) == 0 {
		return nil, apperrors.New(apperrors.CodeDataUnavailable,
			fmt.Sprintf("no historical data found or close prices missing for %s", ticker))
	}

	series := &models.PriceSeries{Ticker: ticker, Period: period, Bars: bars}
	if err := writeCSV(s.Path(ticker, period), series); err != nil {
		// the series is still usable, only the cache write failed
		s.logger.Warn("Failed to write price cache", zap.String("ticker", ticker), zap.Error(err))
	}
	return series, nil
}

// normalize drops bars without a finite close, strips timezones and sorts by
// time keeping the last bar for duplicated timestamps.
func normalize(bars []models.Bar) []models.Bar {
	byTime := make(map[time.Time]models.Bar, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			continue
		}
		t := b.Time
		b.Time = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		byTime[b.Time] = b
	}

	out := make([]models.Bar, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeCSV(path string, series *models.PriceSeries) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, b := range series.Bars {
		row := []string{
			b.Time.Format(timeLayout),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readCSV(path, ticker, period string) (*models.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("cache file %s has no rows", path)
	}

	bars := make([]models.Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+1, len(header), len(rec))
		}
		t, err := time.Parse(timeLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		var vals [5]float64
		for k := range vals {
			if vals[k], err = strconv.ParseFloat(rec[k+1], 64); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, header[k+1], err)
			}
		}
		bars = append(bars, models.Bar{
			Time:   t,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return &models.PriceSeries{Ticker: ticker, Period: period, Bars: bars}, nil
}
