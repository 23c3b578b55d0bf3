package models

import "time"

// Bar is a single daily OHLCV observation. Time is timezone-naive: it holds
// the exchange-local wall clock expressed in UTC.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is the chronological history of one ticker for one period.
type PriceSeries struct {
	Ticker string `json:"ticker"`
	Period string `json:"period"`
	Bars   []Bar  `json:"bars"`
}

// Closes returns the close prices in chronological order.
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	return len(s.Bars)
}

// Tail returns the last n bars, or all of them when fewer exist.
func (s *PriceSeries) Tail(n int) []Bar {
	if n >= len(s.Bars) {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}
