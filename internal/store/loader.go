// Package store persists validated weather records into Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"weather-etl/internal/etl"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS weather_daily (
    id SERIAL PRIMARY KEY,
    city VARCHAR(50) NOT NULL,
    time DATE NOT NULL,
    precipitation_sum FLOAT,
    temperature_2m_max FLOAT,
    temperature_2m_min FLOAT,
    rain_sum FLOAT,
    snowfall_sum FLOAT,
    weather_code INTEGER,
    wind_speed_10m_max FLOAT,
    temp_range FLOAT,
    month INTEGER,
    day_of_week VARCHAR(10),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (city, time)
)`

// upsertSQL inserts one record or overwrites the non-key columns of the
// matching (city, time) row. The RETURNING clause reports which branch ran:
// xmax is 0 only for freshly inserted tuples.
const upsertSQL = `
INSERT INTO weather_daily (
    city, time, precipitation_sum, temperature_2m_max, temperature_2m_min,
    rain_sum, snowfall_sum, weather_code, wind_speed_10m_max,
    temp_range, month, day_of_week
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (city, time) DO UPDATE SET
    precipitation_sum = EXCLUDED.precipitation_sum,
    temperature_2m_max = EXCLUDED.temperature_2m_max,
    temperature_2m_min = EXCLUDED.temperature_2m_min,
    rain_sum = EXCLUDED.rain_sum,
    snowfall_sum = EXCLUDED.snowfall_sum,
    weather_code = EXCLUDED.weather_code,
    wind_speed_10m_max = EXCLUDED.wind_speed_10m_max,
    temp_range = EXCLUDED.temp_range,
    month = EXCLUDED.month,
    day_of_week = EXCLUDED.day_of_week,
    updated_at = now()
RETURNING (xmax = 0)`

const statusSQL = `
SELECT COUNT(*), MAX(updated_at), COUNT(DISTINCT city) FROM weather_daily`

// Loader persists records into the weather_daily table via idempotent upserts.
type Loader struct {
	db DBTX
}

// New creates a Loader on top of a pool or transaction.
func New(db DBTX) *Loader {
	return &Loader{db: db}
}

// EnsureSchema creates the weather_daily table if it does not exist.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create weather_daily: %w", err)
	}
	return nil
}

// Load upserts every record. Re-running with the same batch converges to the
// same stored state: existing (city, time) rows are overwritten, never
// duplicated. Per-row constraint failures are recorded and the batch
// continues; anything else (lost connection, cancelled context) aborts the
// whole load.
func (l *Loader) Load(ctx context.Context, records []etl.WeatherRecord) (etl.LoadReport, error) {
	var report etl.LoadReport

	for _, rec := range records {
		var inserted bool
		err := l.db.QueryRow(ctx, upsertSQL, upsertArgs(rec)...).Scan(&inserted)
		if err == nil {
			if inserted {
				report.Inserted++
			} else {
				report.Updated++
			}
			continue
		}

		if !isRowError(err) {
			return report, fmt.Errorf("upsert %s %s: %w", rec.City, rec.Date.Format("2006-01-02"), err)
		}

		report.Failed++
		report.FailedRows = append(report.FailedRows, etl.FailedRecord{
			City:   rec.City,
			Date:   rec.Date,
			Reason: err.Error(),
		})
		slog.Warn("row persist failed",
			"city", rec.City,
			"date", rec.Date.Format("2006-01-02"),
			"error", err,
		)
	}

	return report, nil
}

// Status reports row count, last load time and distinct city count.
func (l *Loader) Status(ctx context.Context) (etl.StoreStatus, error) {
	var (
		status etl.StoreStatus
		last   pgtype.Timestamptz
	)
	if err := l.db.QueryRow(ctx, statusSQL).Scan(&status.RowCount, &last, &status.DistinctCities); err != nil {
		return etl.StoreStatus{}, fmt.Errorf("query status: %w", err)
	}
	if last.Valid {
		t := last.Time
		status.LastLoadedAt = &t
	}
	return status, nil
}

func upsertArgs(rec etl.WeatherRecord) []any {
	code := pgtype.Int4{}
	if rec.WeatherCode != nil {
		code = pgtype.Int4{Int32: *rec.WeatherCode, Valid: true}
	}
	return []any{
		rec.City,
		pgtype.Date{Time: rec.Date, Valid: true},
		rec.Precipitation,
		rec.TempMax,
		rec.TempMin,
		rec.Rain,
		rec.Snowfall,
		code,
		rec.WindSpeedMax,
		rec.TempRange,
		rec.Month,
		rec.DayOfWeek,
	}
}

// isRowError reports whether an upsert failure is recoverable for the batch.
// Postgres data and integrity errors (SQLSTATE classes 22 and 23) affect only
// the offending row; everything else is treated as fatal for the run.
func isRowError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}
