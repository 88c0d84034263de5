package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader keeps records in a map keyed by (city, date), mimicking the
// store's upsert semantics without a database.
type fakeLoader struct {
	rows     map[string]WeatherRecord
	loadErr  error
	loadedAt time.Time
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{rows: make(map[string]WeatherRecord)}
}

func (f *fakeLoader) Load(_ context.Context, records []WeatherRecord) (LoadReport, error) {
	if f.loadErr != nil {
		return LoadReport{}, f.loadErr
	}
	var report LoadReport
	for _, rec := range records {
		if _, exists := f.rows[rec.Key()]; exists {
			report.Updated++
		} else {
			report.Inserted++
		}
		f.rows[rec.Key()] = rec
	}
	f.loadedAt = time.Now()
	return report, nil
}

func (f *fakeLoader) Status(context.Context) (StoreStatus, error) {
	cities := make(map[string]struct{})
	for _, rec := range f.rows {
		cities[rec.City] = struct{}{}
	}
	status := StoreStatus{
		RowCount:       int64(len(f.rows)),
		DistinctCities: int64(len(cities)),
	}
	if !f.loadedAt.IsZero() {
		t := f.loadedAt
		status.LastLoadedAt = &t
	}
	return status, nil
}

func newTestPipeline(t *testing.T, dir string) (*Pipeline, *fakeLoader) {
	t.Helper()
	loader := newFakeLoader()
	transformer := NewTransformer(testCities, MissingDrop)
	return NewPipeline(dir, transformer, loader), loader
}

func TestPipelineRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "berlin.csv", sampleCSV)
	writeFile(t, dir, "hamburg.json", sampleJSON)

	pipeline, loader := newTestPipeline(t, dir)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.Extracted)
	assert.Zero(t, summary.Rejected)
	assert.Equal(t, 4, summary.Load.Inserted)
	assert.Zero(t, summary.Load.Updated)
	assert.Equal(t, int64(4), summary.TotalRows)

	status, err := loader.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.DistinctCities)
}

func TestPipelineRun_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "berlin.csv", sampleCSV)

	pipeline, loader := newTestPipeline(t, dir)

	first, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	rowsAfterFirst := make(map[string]WeatherRecord, len(loader.rows))
	for k, v := range loader.rows {
		rowsAfterFirst[k] = v
	}

	second, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.TotalRows, second.TotalRows, "re-running must not accumulate rows")
	assert.Equal(t, 2, second.Load.Updated)
	assert.Zero(t, second.Load.Inserted)
	assert.Equal(t, rowsAfterFirst, loader.rows, "identical input converges to identical state")
}

func TestPipelineRun_RejectionsDoNotFailRun(t *testing.T) {
	dir := t.TempDir()
	// Second data row carries an impossible minimum temperature.
	bad := `latitude,52.52,longitude,13.41,elevation,38.0
utc_offset_seconds,0,timezone,GMT,timezone_abbreviation,GMT
time,temperature_2m_max (°C),temperature_2m_min (°C),precipitation_sum (mm),rain_sum (mm),snowfall_sum (cm),weather_code (wmo code),wind_speed_10m_max (km/h)
2024-01-01,4.2,0.1,0.5,0.5,0,61,22.3
2024-01-02,5.0,-70,0.0,0.0,0,3,15.0
`
	writeFile(t, dir, "berlin.csv", bad)

	pipeline, loader := newTestPipeline(t, dir)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err, "row-level rejections must not abort the run")

	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.Load.Inserted)
	assert.Equal(t, int64(1), summary.TotalRows)
	_, excluded := loader.rows["berlin|2024-01-02"]
	assert.False(t, excluded, "a -70 °C row must be excluded from the loaded set")
}

func TestPipelineRun_NoInputIsFatal(t *testing.T) {
	pipeline, _ := newTestPipeline(t, t.TempDir())

	_, err := pipeline.Run(context.Background())
	assert.Error(t, err)
}

func TestPipelineRun_LoadFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "berlin.csv", sampleCSV)

	pipeline, loader := newTestPipeline(t, dir)
	loader.loadErr = errors.New("connection refused")

	_, err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
