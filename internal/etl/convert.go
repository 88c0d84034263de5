package etl

// convert.go provides cell and column cleanup plus type casting helpers.
//
// Open-Meteo exports decorate headers with units ("temperature_2m_max (°C)")
// and occasionally carry CSV artifacts (BOM, stray quotes, Excel formula
// prefixes). All cleanup happens here so the transformer sees one canonical
// shape regardless of source format.

import (
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing a date cell. ISO first since
// that is what Open-Meteo emits.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006/01/02",
	"01/02/2006",
}

// CleanColumnName normalizes a source header to its canonical form:
// "temperature_2m_max (°C)" -> "temperature_2m_max", spaces to underscores,
// lowercased.
func CleanColumnName(name string) string {
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

// CleanCell strips common CSV artifacts from a cell value:
// surrounding whitespace, a UTF-8 BOM, Excel formula prefixes (="..."),
// and stray surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// ParseFloat parses a cleaned cell into a float64. The boolean is false for
// empty cells (missing value, handled by the missing-value strategy).
func ParseFloat(s string) (float64, bool, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

// ParseInt32 parses a cleaned cell into an int32, tolerating values written
// as floats ("3.0") the way spreadsheet exports tend to produce them.
func ParseInt32(s string) (int32, bool, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, false, nil
	}
	i, err := strconv.ParseInt(s, 10, 32)
	if err == nil {
		return int32(i), true, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != float64(int64(f)) {
		return 0, false, err
	}
	return int32(f), true, nil
}

// ParseDate parses a cleaned date cell, normalized to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = CleanCell(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
