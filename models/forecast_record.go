package models

import (
	"time"

	"github.com/lib/pq"
)

const (
	ForecastModeFresh     = "fresh"
	ForecastModeRecursive = "recursive"
)

// ForecastRecord is the audit row written after each served forecast.
type ForecastRecord struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	Ticker     string          `gorm:"not null;index"`
	Mode       string          `gorm:"not null;"`
	Horizon    int             `gorm:"not null;"`
	Period     string          `gorm:"not null;"`
	LastClose  float64         `gorm:"not null;"`
	Prediction pq.Float64Array `gorm:"type:double precision[];not null"`
	Epochs     int             `gorm:"default:0"`
	FinalLoss  float64         `gorm:"default:0"`
	DurationMs int64           `gorm:"not null;"`
}
