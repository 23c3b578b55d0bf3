package models

import (
	"testing"
	"time"
)

func TestPriceSeriesClosesAndTail(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := &PriceSeries{Ticker: "AAPL", Period: "2y"}
	for i := 0; i < 5; i++ {
		s.Bars = append(s.Bars, Bar{Time: start.AddDate(0, 0, i), Close: float64(100 + i)})
	}

	closes := s.Closes()
	if len(closes) != 5 || closes[0] != 100 || closes[4] != 104 {
		t.Fatalf("unexpected closes: %v", closes)
	}
	if got := s.Tail(2); len(got) != 2 || got[1].Close != 104 {
		t.Fatalf("unexpected tail: %v", got)
	}
	if got := s.Tail(10); len(got) != 5 {
		t.Fatalf("expected full series when n exceeds length, got %d", len(got))
	}
}

func TestOptionalHelpers(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("expected nil for empty string")
	}
	if p := StringPtr("Apple"); p == nil || *p != "Apple" {
		t.Error("expected pointer to value")
	}
	if FloatPtr(0) != nil {
		t.Error("expected nil for zero")
	}
}
