package model

import (
	"strings"
	"time"
)

// TimestampLayout is the rendering used for timestamps in text outputs.
const TimestampLayout = "2006-01-02T15:04:05"

// Accepted input layouts, tried in order. Fractional seconds are accepted after
// any layout with a seconds field.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s with the accepted layouts. Blank and null-like values
// report false.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsNull(s) {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsNull reports whether a source value stands for a missing value.
func IsNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "NULL", "None", "nan", "NaN", "NaT":
		return true
	}
	return false
}
