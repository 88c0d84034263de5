package etl

// extract.go reads Open-Meteo export files into RawRows.
//
// Two source formats exist for the same data:
//   - CSV: two metadata rows (coordinates, elevation, timezone) precede the
//     real header row.
//   - JSON: a column-oriented "daily" object mapping each field to an array.
//
// The city is derived from the filename stem ("berlin.csv" -> "berlin"),
// matching how the raw files are organized.

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// csvMetadataRows is the number of non-header preamble rows in an
// Open-Meteo CSV export.
const csvMetadataRows = 2

// ExtractAll reads every CSV and JSON file in dir, in sorted filename order,
// and returns the combined rows. Files with other extensions are skipped with
// a warning. An empty result is a run-level error.
func ExtractAll(ctx context.Context, dir string) ([]RawRow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raw data dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var rows []RawRow
	files := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)

		var (
			fileRows []RawRow
			extErr   error
		)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv":
			fileRows, extErr = ExtractCSV(path)
		case ".json":
			fileRows, extErr = ExtractJSON(path)
		default:
			slog.Warn("skipping unsupported file", "file", name)
			continue
		}
		if extErr != nil {
			return nil, fmt.Errorf("extract %s: %w", name, extErr)
		}

		slog.Info("extracted file", "file", name, "rows", len(fileRows))
		rows = append(rows, fileRows...)
		files++
	}

	if files == 0 {
		return nil, fmt.Errorf("no CSV or JSON files found in %s", dir)
	}

	slog.Info("extraction complete", "files", files, "rows", len(rows))
	return rows, nil
}

// ExtractCSV reads one Open-Meteo CSV export, skipping the metadata preamble.
func ExtractCSV(path string) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // metadata rows have their own field counts

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	if len(records) <= csvMetadataRows {
		return nil, fmt.Errorf("empty file: no header after %d metadata rows", csvMetadataRows)
	}

	header := records[csvMetadataRows]
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = CleanColumnName(CleanCell(h))
	}

	city := cityFromFilename(path)
	base := filepath.Base(path)

	rows := make([]RawRow, 0, len(records)-csvMetadataRows-1)
	for i, rec := range records[csvMetadataRows+1:] {
		columns := make(map[string]string, len(cols)+1)
		for j, col := range cols {
			if j < len(rec) {
				columns[col] = rec[j]
			}
		}
		columns[ColCity] = city
		rows = append(rows, RawRow{Columns: columns, SourceFile: base, Line: i + 1})
	}
	return rows, nil
}

// openMeteoJSON mirrors the daily block of an Open-Meteo JSON export.
// Arrays are column-oriented: index i across all arrays forms one day.
type openMeteoJSON struct {
	Daily map[string][]any `json:"daily"`
}

// ExtractJSON reads one Open-Meteo JSON export.
func ExtractJSON(path string) ([]RawRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc openMeteoJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if len(doc.Daily) == 0 {
		return nil, fmt.Errorf("empty file: no daily block")
	}

	// Clean column names and find the row count from the longest column.
	columns := make(map[string][]any, len(doc.Daily))
	n := 0
	for name, vals := range doc.Daily {
		columns[CleanColumnName(name)] = vals
		if len(vals) > n {
			n = len(vals)
		}
	}

	city := cityFromFilename(path)
	base := filepath.Base(path)

	rows := make([]RawRow, 0, n)
	for i := 0; i < n; i++ {
		cells := make(map[string]string, len(columns)+1)
		for col, vals := range columns {
			if i < len(vals) {
				cells[col] = jsonCell(vals[i])
			}
		}
		cells[ColCity] = city
		rows = append(rows, RawRow{Columns: cells, SourceFile: base, Line: i + 1})
	}
	return rows, nil
}

// jsonCell renders a decoded JSON value as the string cell the transformer
// expects, so both source formats share one casting path.
func jsonCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// cityFromFilename derives the city from the file stem: "Berlin.csv" -> "berlin".
func cityFromFilename(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
