package etl

// transform.go turns raw extracted rows into validated WeatherRecords.
//
// The pass is: normalize columns -> cast types -> missing-value strategy ->
// validate invariants -> deduplicate by (city, date) -> enrich with derived
// columns. Every dropped row lands in the RejectionReport with the offending
// field and value; the transformer never touches the store.

import (
	"fmt"
	"log/slog"
)

// MissingStrategy selects how rows with missing numeric values are handled.
type MissingStrategy string

const (
	// MissingDrop rejects any row with a missing numeric value.
	MissingDrop MissingStrategy = "drop"
	// MissingFillZero substitutes 0 for missing numeric values.
	MissingFillZero MissingStrategy = "fill_zero"
	// MissingFillMean substitutes the batch mean of the column.
	MissingFillMean MissingStrategy = "fill_mean"
)

// ParseMissingStrategy validates a configured strategy name.
func ParseMissingStrategy(s string) (MissingStrategy, error) {
	switch MissingStrategy(s) {
	case MissingDrop, MissingFillZero, MissingFillMean:
		return MissingStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown missing-value strategy %q (use drop, fill_zero or fill_mean)", s)
	}
}

// requiredColumns must be present in every row; absence is a schema error.
var requiredColumns = []string{
	ColTime,
	ColTempMax,
	ColTempMin,
	ColPrecipitation,
	ColRain,
	ColSnowfall,
	ColCity,
}

// numericColumns are the float columns the missing-value strategy covers,
// in a fixed order so fill_mean is deterministic.
var numericColumns = []string{
	ColTempMax,
	ColTempMin,
	ColPrecipitation,
	ColRain,
	ColSnowfall,
}

// Transformer cleans, validates and deduplicates extracted rows.
type Transformer struct {
	cities  map[string]struct{}
	missing MissingStrategy
}

// NewTransformer creates a transformer for the given known-city list.
func NewTransformer(cities []string, missing MissingStrategy) *Transformer {
	set := make(map[string]struct{}, len(cities))
	for _, c := range cities {
		set[c] = struct{}{}
	}
	return &Transformer{cities: set, missing: missing}
}

// typedRow is a row after casting, before validation. Numeric fields are
// pointers so the missing-value strategy can distinguish absent from zero.
type typedRow struct {
	raw     RawRow
	values  map[string]*float64 // keyed by numericColumns
	wind    *float64
	code    *int32
	partial WeatherRecord // city and date filled in
}

// Transform runs the full cleaning pass and returns the surviving records
// plus the rejection report. The output order is the first-appearance order
// of each (city, date) key; when a key repeats, the later-encountered values
// win.
func (t *Transformer) Transform(rows []RawRow) ([]WeatherRecord, *RejectionReport) {
	report := &RejectionReport{}

	typed := make([]typedRow, 0, len(rows))
	for _, row := range rows {
		tr, rerr := t.castRow(row)
		if rerr != nil {
			report.add(row, rerr)
			continue
		}
		typed = append(typed, tr)
	}

	typed = t.applyMissing(typed, report)

	records := make([]WeatherRecord, 0, len(typed))
	for _, tr := range typed {
		rec, rerr := t.validate(tr)
		if rerr != nil {
			report.add(tr.raw, rerr)
			continue
		}
		records = append(records, rec)
	}

	records = deduplicate(records)

	for i := range records {
		enrich(&records[i])
	}

	for _, rej := range report.Rejected {
		slog.Warn("row rejected",
			"file", rej.SourceFile,
			"line", rej.Line,
			"city", rej.City,
			"reason", string(rej.Err.Kind),
			"error", rej.Err.Error(),
		)
	}

	return records, report
}

// castRow checks the required columns and casts every cell. Missing numeric
// values survive as nil for the missing-value strategy; a missing column or
// unparseable cell rejects the row.
func (t *Transformer) castRow(row RawRow) (typedRow, *RowError) {
	for _, col := range requiredColumns {
		if _, ok := row.Get(col); !ok {
			return typedRow{}, schemaErr(col)
		}
	}

	tr := typedRow{raw: row, values: make(map[string]*float64, len(numericColumns))}

	dateCell, _ := row.Get(ColTime)
	date, err := ParseDate(dateCell)
	if err != nil {
		return typedRow{}, parseErr(ColTime, dateCell, "unparseable date")
	}
	tr.partial.Date = date
	tr.partial.City = CleanCell(row.Columns[ColCity])

	for _, col := range numericColumns {
		cell := row.Columns[col]
		f, ok, err := ParseFloat(cell)
		if err != nil {
			return typedRow{}, parseErr(col, cell, "unparseable number")
		}
		if ok {
			v := f
			tr.values[col] = &v
		}
	}

	// Optional columns: absent entirely is fine, present but garbage is not.
	if cell, ok := row.Get(ColWindSpeedMax); ok {
		f, present, err := ParseFloat(cell)
		if err != nil {
			return typedRow{}, parseErr(ColWindSpeedMax, cell, "unparseable number")
		}
		if present {
			tr.wind = &f
		}
	}
	if cell, ok := row.Get(ColWeatherCode); ok {
		c, present, err := ParseInt32(cell)
		if err != nil {
			return typedRow{}, parseErr(ColWeatherCode, cell, "unparseable weather code")
		}
		if present {
			tr.code = &c
		}
	}

	return tr, nil
}

// applyMissing resolves nil numeric values according to the configured
// strategy. fill_mean uses per-column means over the whole batch, computed
// before any substitution.
func (t *Transformer) applyMissing(typed []typedRow, report *RejectionReport) []typedRow {
	var means map[string]float64
	if t.missing == MissingFillMean {
		means = columnMeans(typed)
	}

	out := typed[:0]
rows:
	for _, tr := range typed {
		for _, col := range numericColumns {
			if tr.values[col] != nil {
				continue
			}
			switch t.missing {
			case MissingDrop:
				report.add(tr.raw, validationErr(col, "", "missing value"))
				continue rows
			case MissingFillZero:
				zero := 0.0
				tr.values[col] = &zero
			case MissingFillMean:
				m := means[col]
				tr.values[col] = &m
			}
		}
		out = append(out, tr)
	}
	return out
}

// columnMeans computes the mean of each numeric column over present values.
// Columns with no values at all fall back to 0.
func columnMeans(typed []typedRow) map[string]float64 {
	means := make(map[string]float64, len(numericColumns))
	for _, col := range numericColumns {
		sum, n := 0.0, 0
		for _, tr := range typed {
			if v := tr.values[col]; v != nil {
				sum += *v
				n++
			}
		}
		if n > 0 {
			means[col] = sum / float64(n)
		}
	}
	return means
}

// validate applies the physical-plausibility invariants. Violations reject
// the row; values are never clamped.
func (t *Transformer) validate(tr typedRow) (WeatherRecord, *RowError) {
	rec := tr.partial

	if _, ok := t.cities[rec.City]; !ok {
		return rec, validationErr(ColCity, rec.City, "unknown city")
	}

	rec.TempMax = *tr.values[ColTempMax]
	rec.TempMin = *tr.values[ColTempMin]
	rec.Precipitation = *tr.values[ColPrecipitation]
	rec.Rain = *tr.values[ColRain]
	rec.Snowfall = *tr.values[ColSnowfall]
	if tr.wind != nil {
		rec.WindSpeedMax = *tr.wind
	}
	rec.WeatherCode = tr.code

	if rec.TempMin < TempMinBound || rec.TempMin > TempMaxBound {
		return rec, validationErr(ColTempMin, formatFloat(rec.TempMin), "temperature out of bounds")
	}
	if rec.TempMax < TempMinBound || rec.TempMax > TempMaxBound {
		return rec, validationErr(ColTempMax, formatFloat(rec.TempMax), "temperature out of bounds")
	}
	if rec.TempMin > rec.TempMax {
		return rec, validationErr(ColTempMin, formatFloat(rec.TempMin), "min temperature exceeds max")
	}
	if rec.Precipitation < 0 {
		return rec, validationErr(ColPrecipitation, formatFloat(rec.Precipitation), "negative precipitation")
	}
	if rec.Rain < 0 {
		return rec, validationErr(ColRain, formatFloat(rec.Rain), "negative rain")
	}
	if rec.Snowfall < 0 {
		return rec, validationErr(ColSnowfall, formatFloat(rec.Snowfall), "negative snowfall")
	}
	if rec.WindSpeedMax < 0 {
		return rec, validationErr(ColWindSpeedMax, formatFloat(rec.WindSpeedMax), "negative wind speed")
	}

	return rec, nil
}

// deduplicate keeps exactly one record per (city, date) key. The
// later-encountered record wins; output order is the first appearance of
// each key, so the result is deterministic for a given input order.
func deduplicate(records []WeatherRecord) []WeatherRecord {
	out := make([]WeatherRecord, 0, len(records))
	pos := make(map[string]int, len(records))
	dupes := 0

	for _, rec := range records {
		key := rec.Key()
		if i, ok := pos[key]; ok {
			out[i] = rec
			dupes++
			continue
		}
		pos[key] = len(out)
		out = append(out, rec)
	}

	if dupes > 0 {
		slog.Info("removed duplicate rows", "count", dupes)
	}
	return out
}

// enrich computes the derived columns once, after validation.
func enrich(rec *WeatherRecord) {
	rec.TempRange = rec.TempMax - rec.TempMin
	rec.Month = int(rec.Date.Month())
	rec.DayOfWeek = rec.Date.Weekday().String()
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
