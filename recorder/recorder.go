// Package recorder keeps an audit log of served forecasts. Recording is
// best effort: failures are logged and never reach the caller.
package recorder

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockwave/models"
)

// Recorder persists forecast audit rows.
type Recorder interface {
	Record(ctx context.Context, rec *models.ForecastRecord)
	Close() error
}

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) Record(context.Context, *models.ForecastRecord) {}
func (NoopRecorder) Close() error                                   { return nil }

// GormRecorder writes rows through gorm (postgres in production).
type GormRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormRecorder(db *gorm.DB, logger *zap.Logger) *GormRecorder {
	return &GormRecorder{db: db, logger: logger}
}

func (r *GormRecorder) Record(ctx context.Context, rec *models.ForecastRecord) {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		r.logger.Error("Failed to record forecast",
			zap.String("ticker", rec.Ticker),
			zap.String("mode", rec.Mode),
			zap.Error(err),
		)
	}
}

func (r *GormRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open picks the backend: postgres when databaseURL is set, SQLite when
// sqlitePath is set, otherwise a no-op recorder.
func Open(databaseURL, sqlitePath string, pool models.ConnectionPoolConfig, logger *zap.Logger) (Recorder, error) {
	if databaseURL != "" {
		db, err := models.InitDatabase(databaseURL, pool)
		if err != nil {
			return nil, err
		}
		logger.Info("Recording forecasts to postgres")
		return NewGormRecorder(db, logger), nil
	}
	if sqlitePath != "" {
		r, err := NewSQLiteRecorder(sqlitePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Recording forecasts to sqlite", zap.String("path", sqlitePath))
		return r, nil
	}
	logger.Info("Forecast recording disabled")
	return NewNoopRecorder(), nil
}
