package agent

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// msThreshold separates millisecond from second epoch values.
const msThreshold = 1_000_000_000_000

// ParseTimestampMs converts a loosely typed timestamp into Unix milliseconds.
// Numbers (and numeric strings) above 1e12 are milliseconds, smaller ones
// seconds; other strings are parsed as RFC 3339.
func ParseTimestampMs(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return numericMs(t)
	case int64:
		return numericMs(float64(t))
	case int:
		return numericMs(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return numericMs(f)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return numericMs(f)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli(), true
			}
		}
	}
	return 0, false
}

func numericMs(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > msThreshold {
		return int64(f), true
	}
	return int64(f * 1000), true
}

// ISOMillis formats Unix milliseconds the way the dashboard expects.
func ISOMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
