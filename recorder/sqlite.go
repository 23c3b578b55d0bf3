package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"stockwave/models"
)

// SQLiteRecorder persists audit rows to a local SQLite file.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecast_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at  INTEGER NOT NULL,
			ticker      TEXT NOT NULL,
			mode        TEXT NOT NULL,
			horizon     INTEGER NOT NULL,
			period      TEXT NOT NULL,
			last_close  REAL,
			prediction  TEXT NOT NULL,
			epochs      INTEGER DEFAULT 0,
			final_loss  REAL DEFAULT 0,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecast_ticker ON forecast_records(ticker)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, rec *models.ForecastRecord) {
	if err := r.insert(ctx, rec); err != nil {
		r.logger.Error("Failed to record forecast",
			zap.String("ticker", rec.Ticker),
			zap.String("mode", rec.Mode),
			zap.Error(err),
		)
	}
}

func (r *SQLiteRecorder) insert(ctx context.Context, rec *models.ForecastRecord) error {
	prediction, err := json.Marshal([]float64(rec.Prediction))
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO forecast_records
			(created_at, ticker, mode, horizon, period, last_close, prediction, epochs, final_loss, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.Unix(), rec.Ticker, rec.Mode, rec.Horizon, rec.Period,
		rec.LastClose, string(prediction), rec.Epochs, rec.FinalLoss, rec.DurationMs,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = uint(id)
	}
	return nil
}

// Recent returns the latest rows for ticker, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, ticker string, limit int) ([]models.ForecastRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, ticker, mode, horizon, period, last_close, prediction, epochs, final_loss, duration_ms
		FROM forecast_records WHERE ticker = ? ORDER BY id DESC LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ForecastRecord
	for rows.Next() {
		var rec models.ForecastRecord
		var created int64
		var prediction string
		if err := rows.Scan(&rec.ID, &created, &rec.Ticker, &rec.Mode, &rec.Horizon, &rec.Period,
			&rec.LastClose, &prediction, &rec.Epochs, &rec.FinalLoss, &rec.DurationMs); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(created, 0)
		var values []float64
		if err := json.Unmarshal([]byte(prediction), &values); err != nil {
			return nil, fmt.Errorf("decode prediction of row %d: %w", rec.ID, err)
		}
		rec.Prediction = values
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
