// Package transform maps raw source chunks into canonical rows matching the
// target schema. Transformers are pure: no I/O, no store access, so every
// mapping is unit-testable with literal rows.
//
// Column positions are resolved once per chunk and the per-row hot loop
// works on integer indexes, mirroring the compiled-plan approach used by the
// streaming coercion layer this package grew out of.
package transform

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/parser/csv"
)

// Result is the canonical output of transforming one chunk. Rows are
// positional, aligned to the target schema.Table column order. Keys holds
// the natural key per row for dedup ("" when the table has no natural key).
// Dropped counts rows rejected for a missing natural key or for failing the
// year/date invariant; such rows are never fatal.
type Result struct {
	Rows    [][]any
	Keys    []string
	Dropped int
}

// dateLayouts are tried in order. The extracts carry ISO dates, sometimes
// with a time component; a few older files use US slash dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"2006/01/02",
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseYear(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	// Year columns sometimes arrive as "2007.0".
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	y, err := strconv.Atoi(s)
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// truncate limits s to max runes. Overlong values are cut to the column
// width rather than rejected.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// textVal returns a width-truncated value or nil for the empty string.
func textVal(s string, width int) any {
	if s == "" {
		return nil
	}
	return truncate(s, width)
}

func floatVal(s string) any {
	if f, ok := parseFloat(s); ok {
		return f
	}
	return nil
}

// resolveYear applies the year invariant: the source-provided year wins,
// otherwise the year component of the primary date. ok is false when
// neither exists, which rejects the row.
func resolveYear(yearField string, date time.Time, haveDate bool) (int, bool) {
	if y, ok := parseYear(yearField); ok {
		return y, true
	}
	if haveDate {
		return date.Year(), true
	}
	return 0, false
}

// field index resolution, done once per chunk.

const noCol = -1

func colIdx(c *csv.Chunk, name string) int {
	if i, ok := c.Col[name]; ok {
		return i
	}
	return noCol
}

func get(row []string, i int) string {
	if i == noCol || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
