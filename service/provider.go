package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockwave/apperrors"
	"stockwave/models"
)

// Provider is an upstream source of daily bars, quotes and company metadata.
type Provider interface {
	Name() string
	History(ctx context.Context, ticker, period string) ([]models.Bar, error)
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
	CompanyInfo(ctx context.Context, ticker string) (*models.CompanyInfo, error)
}

// Periods is the range vocabulary accepted by History.
var Periods = []string{"1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}

// ValidPeriod reports whether period belongs to Periods.
func ValidPeriod(period string) bool {
	for _, p := range Periods {
		if p == period {
			return true
		}
	}
	return false
}

// periodStart translates a range token into the first calendar day it covers.
func periodStart(period string, now time.Time) (time.Time, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case "1mo":
		return day.AddDate(0, -1, 0), nil
	case "3mo":
		return day.AddDate(0, -3, 0), nil
	case "6mo":
		return day.AddDate(0, -6, 0), nil
	case "1y":
		return day.AddDate(-1, 0, 0), nil
	case "2y":
		return day.AddDate(-2, 0, 0), nil
	case "5y":
		return day.AddDate(-5, 0, 0), nil
	case "10y":
		return day.AddDate(-10, 0, 0), nil
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	case "max":
		return time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("unsupported period %q", period))
}

// NormalizeTicker upper-cases and trims a user supplied symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ValidTicker accepts 1-10 characters of A-Z, 0-9 and the punctuation used by
// index and share-class symbols (. - ^ =).
func ValidTicker(ticker string) bool {
	if len(ticker) == 0 || len(ticker) > 10 {
		return false
	}
	for _, r := range ticker {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return false
		}
	}
	return true
}

// dailyBar pins a bar to its exchange-local calendar day, expressed as a
// timezone-naive UTC midnight.
func dailyBar(ts, gmtOffset int64) time.Time {
	local := time.Unix(ts+gmtOffset, 0).UTC()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
