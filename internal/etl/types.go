// Package etl provides the business logic for the weather ingestion pipeline.
// This package has no storage dependencies beyond the interfaces it declares
// and can be exercised entirely in-memory.
package etl

import (
	"context"
	"fmt"
	"time"
)

// CanonicalColumns is the cleaned Open-Meteo column set the transformer
// operates on. Source files may decorate these names with units; the
// extractor strips the decoration before rows reach the transformer.
const (
	ColTime          = "time"
	ColTempMax       = "temperature_2m_max"
	ColTempMin       = "temperature_2m_min"
	ColPrecipitation = "precipitation_sum"
	ColRain          = "rain_sum"
	ColSnowfall      = "snowfall_sum"
	ColWeatherCode   = "weather_code"
	ColWindSpeedMax  = "wind_speed_10m_max"
	ColCity          = "city"
)

// Temperature plausibility bounds in degrees Celsius. Records outside the
// range are rejected, never clamped.
const (
	TempMinBound = -60.0
	TempMaxBound = 60.0
)

// RawRow is a single extracted row with cleaned column names. Values are
// untyped strings; casting happens in the transformer so that a bad cell
// becomes a reported rejection instead of an extraction failure.
type RawRow struct {
	Columns    map[string]string
	SourceFile string
	Line       int // 1-based position within the source file's data rows
}

// Get returns the cell for a cleaned column name, and whether it exists.
func (r RawRow) Get(col string) (string, bool) {
	v, ok := r.Columns[col]
	return v, ok
}

// WeatherRecord is one validated city-day observation.
type WeatherRecord struct {
	City          string
	Date          time.Time // date precision, UTC
	TempMax       float64   // °C
	TempMin       float64   // °C
	Precipitation float64   // mm
	Rain          float64   // mm
	Snowfall      float64   // cm
	WeatherCode   *int32    // WMO code, nullable
	WindSpeedMax  float64   // km/h

	// Derived after validation, never independently mutated.
	TempRange float64
	Month     int
	DayOfWeek string
}

// Key returns the natural key of the record: city plus calendar date.
func (r WeatherRecord) Key() string {
	return r.City + "|" + r.Date.Format("2006-01-02")
}

// RejectedRow records a single dropped row and why it was dropped.
type RejectedRow struct {
	SourceFile string
	Line       int
	City       string
	Err        *RowError
}

func (r RejectedRow) String() string {
	return fmt.Sprintf("%s:%d (%s): %v", r.SourceFile, r.Line, r.City, r.Err)
}

// RejectionReport collects every row dropped during a transform pass.
type RejectionReport struct {
	Rejected []RejectedRow
}

func (r *RejectionReport) add(row RawRow, err *RowError) {
	city := row.Columns[ColCity]
	r.Rejected = append(r.Rejected, RejectedRow{
		SourceFile: row.SourceFile,
		Line:       row.Line,
		City:       city,
		Err:        err,
	})
}

// Count returns the total number of rejected rows.
func (r *RejectionReport) Count() int {
	return len(r.Rejected)
}

// CountByKind returns the number of rejections with the given reason kind.
func (r *RejectionReport) CountByKind(kind RowErrorKind) int {
	n := 0
	for _, rej := range r.Rejected {
		if rej.Err != nil && rej.Err.Kind == kind {
			n++
		}
	}
	return n
}

// FailedRecord identifies a record the loader could not persist.
type FailedRecord struct {
	City   string
	Date   time.Time
	Reason string
}

// LoadReport is the outcome of persisting a validated batch.
type LoadReport struct {
	Inserted   int
	Updated    int
	Failed     int
	FailedRows []FailedRecord
}

// StoreStatus is the loader's read-only introspection result.
type StoreStatus struct {
	RowCount       int64
	LastLoadedAt   *time.Time // nil when the table is empty
	DistinctCities int64
}

// RecordLoader persists validated records. Implemented by store.Loader;
// declared here so the pipeline and its tests need no database.
type RecordLoader interface {
	Load(ctx context.Context, records []WeatherRecord) (LoadReport, error)
	Status(ctx context.Context) (StoreStatus, error)
}
