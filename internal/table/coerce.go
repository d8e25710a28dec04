package table

import (
	"strconv"
	"strings"
	"time"
)

// timeLayouts covers the timestamp shapes seen in uploaded business data.
// Tried in order; first match wins.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"2006-01",
	"2006",
}

// Number coerces a cell to float64. Strings parse after trimming; anything
// unparsable reports false rather than raising, mirroring how aggregation
// excludes non-numeric values.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Time parses a cell as a timestamp. Numeric cells are treated as years
// when they fall in a plausible range, otherwise rejected.
func Time(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case float64:
		if x >= 1900 && x < 2200 && x == float64(int(x)) {
			return time.Date(int(x), time.January, 1, 0, 0, 0, 0, time.UTC), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Compare orders a cell against a filter value. Both numeric compares
// numerically; otherwise both render to strings. Returns false when either
// side is nil.
func Compare(cell, value any) (int, bool) {
	if cell == nil || value == nil {
		return 0, false
	}
	cn, cok := Number(cell)
	vn, vok := Number(value)
	if cok && vok {
		switch {
		case cn < vn:
			return -1, true
		case cn > vn:
			return 1, true
		default:
			return 0, true
		}
	}
	cs, vs := CellString(cell), CellString(value)
	return strings.Compare(cs, vs), true
}

// Equal reports value equality between a cell and a filter value, numeric
// when both sides coerce, string otherwise. nil equals only nil.
func Equal(cell, value any) bool {
	if cell == nil || value == nil {
		return cell == nil && value == nil
	}
	cn, cok := Number(cell)
	vn, vok := Number(value)
	if cok && vok {
		return cn == vn
	}
	return CellString(cell) == CellString(value)
}
