package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwave_forecasts_total",
			Help: "Total number of forecast requests by mode and outcome code",
		},
		[]string{"mode", "outcome"},
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockwave_training_duration_seconds",
			Help:    "Sequence model training duration",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"horizon_bucket"},
	)

	PriceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwave_price_cache_lookups_total",
			Help: "Price cache lookups by result (hit, miss, stale, refresh)",
		},
		[]string{"result"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwave_upstream_requests_total",
			Help: "Market data provider calls by provider, call and outcome",
		},
		[]string{"provider", "call", "outcome"},
	)

	TrainingSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockwave_training_slots_in_use",
			Help: "Training worker slots currently held",
		},
	)
)

// HorizonBucket groups horizons so the histogram label set stays small.
func HorizonBucket(h int) string {
	switch {
	case h <= 1:
		return "1"
	case h <= 7:
		return "2-7"
	case h <= 30:
		return "8-30"
	case h <= 180:
		return "31-180"
	default:
		return "181+"
	}
}

// Outcome returns "ok" for nil errors and the given code otherwise.
func Outcome(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
