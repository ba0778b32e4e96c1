package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a raw upstream object as decoded from JSON.
type Record = map[string]any

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// First returns the value of the first key holding a usable value.
// Nil values and blank strings are skipped.
func First(rec Record, keys ...string) any {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// FirstString is First rendered as a string, or def when nothing matched.
func FirstString(rec Record, def string, keys ...string) string {
	if s := String(First(rec, keys...)); s != "" {
		return s
	}
	return def
}

// String renders scalar JSON values. Objects and arrays yield "".
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return String(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

// Number converts a numeric JSON value.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool reports whether v is a JSON true (or the string "true").
func Bool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(strings.TrimSpace(x), "true")
	}
	return false
}

// ParseTime parses timestamps in the formats seen upstream: RFC 3339,
// zone-less ISO dates and datetimes, and epoch seconds or milliseconds
// from 2001 on.
// Zone-less values are read in loc.
func ParseTime(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(n)
		}
		return time.Time{}, false
	}
	if n, ok := Number(v); ok {
		return epoch(n)
	}
	return time.Time{}, false
}

// FirstTime returns the first key whose value parses as a timestamp.
func FirstTime(rec Record, loc *time.Location, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		if t, ok := ParseTime(rec[k], loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// minEpoch is the smallest value read as epoch seconds (2001-09-09). Smaller
// numbers are years, counters or compact dates, not timestamps.
const minEpoch = 1e9

func epoch(n float64) (time.Time, bool) {
	if n < minEpoch || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, false
	}
	if n >= 1e12 {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	return time.Unix(int64(n), 0).UTC(), true
}
