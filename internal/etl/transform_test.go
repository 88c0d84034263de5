package etl

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCities = []string{"berlin", "hamburg", "munich", "cologne"}

// rawRow builds a well-formed raw row; override fields to break it.
func rawRow(city, date string, overrides map[string]string) RawRow {
	columns := map[string]string{
		ColTime:          date,
		ColTempMax:       "10.5",
		ColTempMin:       "2.1",
		ColPrecipitation: "0.4",
		ColRain:          "0.4",
		ColSnowfall:      "0",
		ColWeatherCode:   "61",
		ColWindSpeedMax:  "18.7",
		ColCity:          city,
	}
	for k, v := range overrides {
		if v == "\x00" { // sentinel: remove the column entirely
			delete(columns, k)
			continue
		}
		columns[k] = v
	}
	return RawRow{Columns: columns, SourceFile: city + ".csv", Line: 1}
}

func TestTransform_ValidRow(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", nil)})

	require.Len(t, records, 1)
	assert.Zero(t, report.Count())

	rec := records[0]
	assert.Equal(t, "berlin", rec.City)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, 10.5, rec.TempMax)
	assert.Equal(t, 2.1, rec.TempMin)
	require.NotNil(t, rec.WeatherCode)
	assert.Equal(t, int32(61), *rec.WeatherCode)
	assert.Equal(t, 18.7, rec.WindSpeedMax)
}

func TestTransform_EnrichesDerivedColumns(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, _ := tr.Transform([]RawRow{rawRow("munich", "2024-07-15", map[string]string{
		ColTempMax: "28.0",
		ColTempMin: "14.5",
	})})

	require.Len(t, records, 1)
	assert.InDelta(t, 13.5, records[0].TempRange, 1e-9)
	assert.Equal(t, 7, records[0].Month)
	assert.Equal(t, "Monday", records[0].DayOfWeek)
}

func TestTransform_RejectsTemperatureBelowBound(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", map[string]string{
		ColTempMin: "-70",
	})})

	assert.Empty(t, records, "out-of-bound record must never reach the loader")
	require.Equal(t, 1, report.Count())
	rej := report.Rejected[0]
	assert.Equal(t, KindValidation, rej.Err.Kind)
	assert.Equal(t, ColTempMin, rej.Err.Field)
	assert.Equal(t, "-70", rej.Err.Value)
}

func TestTransform_RejectsTemperatureAboveBound(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", map[string]string{
		ColTempMax: "65",
	})})

	assert.Empty(t, records)
	assert.Equal(t, 1, report.CountByKind(KindValidation))
}

func TestTransform_RejectsMinAboveMax(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("hamburg", "2024-01-01", map[string]string{
		ColTempMax: "5.0",
		ColTempMin: "9.0",
	})})

	assert.Empty(t, records)
	require.Equal(t, 1, report.Count())
	assert.Equal(t, KindValidation, report.Rejected[0].Err.Kind)
}

func TestTransform_RejectsNegativePrecipitationFamily(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	for _, col := range []string{ColPrecipitation, ColRain, ColSnowfall, ColWindSpeedMax} {
		t.Run(col, func(t *testing.T) {
			records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", map[string]string{
				col: "-1.0",
			})})

			assert.Empty(t, records, "negative %s must be rejected, not clamped", col)
			require.Equal(t, 1, report.Count())
			assert.Equal(t, KindValidation, report.Rejected[0].Err.Kind)
			assert.Equal(t, col, report.Rejected[0].Err.Field)
		})
	}
}

func TestTransform_RejectsUnknownCity(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("atlantis", "2024-01-01", nil)})

	assert.Empty(t, records)
	require.Equal(t, 1, report.Count())
	assert.Equal(t, KindValidation, report.Rejected[0].Err.Kind)
	assert.Equal(t, ColCity, report.Rejected[0].Err.Field)
}

func TestTransform_MissingColumnIsSchemaError(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", map[string]string{
		ColRain: "\x00",
	})})

	assert.Empty(t, records)
	require.Equal(t, 1, report.Count())
	assert.Equal(t, KindSchema, report.Rejected[0].Err.Kind)
	assert.Equal(t, ColRain, report.Rejected[0].Err.Field)
}

func TestTransform_UnparseableValueIsParseError(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{
		rawRow("berlin", "not-a-date", nil),
		rawRow("berlin", "2024-01-02", map[string]string{ColTempMax: "warm"}),
	})

	assert.Empty(t, records)
	assert.Equal(t, 2, report.CountByKind(KindParse))
}

func TestTransform_OptionalColumnsMayBeAbsent(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("cologne", "2024-03-01", map[string]string{
		ColWeatherCode:  "\x00",
		ColWindSpeedMax: "\x00",
	})})

	require.Len(t, records, 1)
	assert.Zero(t, report.Count())
	assert.Nil(t, records[0].WeatherCode)
	assert.Zero(t, records[0].WindSpeedMax)
}

func TestTransform_DeduplicateLaterSourceWins(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	// Berlin 2024-01-01 appears in the CSV extract first, then in the JSON
	// extract with different values. The JSON row is processed later, so its
	// values must survive.
	csvRow := rawRow("berlin", "2024-01-01", map[string]string{ColTempMax: "4.0"})
	csvRow.SourceFile = "berlin.csv"
	jsonRow := rawRow("berlin", "2024-01-01", map[string]string{ColTempMax: "6.5"})
	jsonRow.SourceFile = "berlin.json"
	other := rawRow("hamburg", "2024-01-01", nil)

	records, report := tr.Transform([]RawRow{csvRow, other, jsonRow})

	assert.Zero(t, report.Count())
	require.Len(t, records, 2)
	// First-appearance order: berlin slot first, holding the JSON values.
	assert.Equal(t, "berlin", records[0].City)
	assert.Equal(t, 6.5, records[0].TempMax)
	assert.Equal(t, "hamburg", records[1].City)
}

func TestTransform_DeduplicateKeepsDistinctKeys(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, _ := tr.Transform([]RawRow{
		rawRow("berlin", "2024-01-01", nil),
		rawRow("berlin", "2024-01-02", nil),
		rawRow("hamburg", "2024-01-01", nil),
	})

	assert.Len(t, records, 3, "same city different date and same date different city are distinct keys")
}

func TestTransform_MissingValueDropStrategy(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", map[string]string{
		ColSnowfall: "",
	})})

	assert.Empty(t, records)
	require.Equal(t, 1, report.Count())
	assert.Equal(t, ColSnowfall, report.Rejected[0].Err.Field)
}

func TestTransform_MissingValueFillZero(t *testing.T) {
	tr := NewTransformer(testCities, MissingFillZero)

	records, report := tr.Transform([]RawRow{rawRow("berlin", "2024-01-01", map[string]string{
		ColSnowfall: "",
	})})

	require.Len(t, records, 1)
	assert.Zero(t, report.Count())
	assert.Zero(t, records[0].Snowfall)
}

func TestTransform_MissingValueFillMean(t *testing.T) {
	tr := NewTransformer(testCities, MissingFillMean)

	records, report := tr.Transform([]RawRow{
		rawRow("berlin", "2024-01-01", map[string]string{ColPrecipitation: "2.0"}),
		rawRow("berlin", "2024-01-02", map[string]string{ColPrecipitation: "4.0"}),
		rawRow("berlin", "2024-01-03", map[string]string{ColPrecipitation: ""}),
	})

	assert.Zero(t, report.Count())
	require.Len(t, records, 3)
	assert.InDelta(t, 3.0, records[2].Precipitation, 1e-9)
}

func TestTransform_FullLeapYearBatch(t *testing.T) {
	tr := NewTransformer(testCities, MissingDrop)

	var rows []RawRow
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, city := range testCities {
		for d := 0; d < 366; d++ {
			date := start.AddDate(0, 0, d).Format("2006-01-02")
			rows = append(rows, rawRow(city, date, map[string]string{
				ColTempMax: fmt.Sprintf("%.1f", 5.0+float64(d%20)),
				ColTempMin: fmt.Sprintf("%.1f", -2.0+float64(d%10)),
			}))
		}
	}

	records, report := tr.Transform(rows)

	assert.Equal(t, 4*366, len(records), "2024 is a leap year: 4 cities x 366 days")
	assert.Zero(t, report.Count())
}
