package stac

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp formats observed across STAC catalogs. Microsoft Planetary
// Computer and Element84 Earth Search both emit RFC3339, but some catalogs
// drop the offset or pad fractional seconds.
var timestampFormats = []string{
	time.RFC3339Nano,                // "2006-01-02T15:04:05.999999999Z07:00"
	time.RFC3339,                    // "2006-01-02T15:04:05Z07:00"
	"2006-01-02T15:04:05.000000",    // microseconds, no offset
	"2006-01-02T15:04:05.999999999", // nanoseconds, no offset
	"2006-01-02T15:04:05Z",          // UTC without offset
	"2006-01-02T15:04:05",           // without timezone
}

// ParseTimestamp parses a catalog timestamp string into a time.Time.
// Returns time in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	s = strings.TrimSpace(s)

	var lastErr error
	for _, format := range timestampFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			// Ensure UTC
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, lastErr)
}

// FormatTimestamp formats a time.Time as RFC3339 for STAC.
// STAC uses RFC3339 format: "2023-06-15T14:00:00Z"
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatInterval renders a closed, open-start, or open-end datetime interval
// in the form the STAC item-search endpoint expects. Nil endpoints become "..".
func FormatInterval(start, end *time.Time) string {
	if start == nil && end == nil {
		return ""
	}

	s, e := "..", ".."
	if start != nil {
		s = FormatTimestamp(*start)
	}
	if end != nil {
		e = FormatTimestamp(*end)
	}
	return s + "/" + e
}

// ParseInterval parses a STAC datetime parameter which can be:
// - A single RFC3339 datetime: "2023-06-15T14:00:00Z"
// - An open-ended interval: "../2023-06-15T14:00:00Z" or "2023-06-15T14:00:00Z/.."
// - A closed interval: "2023-06-15T14:00:00Z/2023-06-16T14:00:00Z"
// Returns start and end times. Either may be nil for open-ended intervals.
func ParseInterval(datetime string) (*time.Time, *time.Time, error) {
	if datetime == "" {
		return nil, nil, nil
	}

	datetime = strings.TrimSpace(datetime)

	// Check if it's an interval (contains "/")
	if !strings.Contains(datetime, "/") {
		// Single datetime - use as both start and end
		t, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid datetime format: %w", err)
		}
		return &t, &t, nil
	}

	parts := strings.Split(datetime, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid datetime interval format: must be 'start/end'")
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	var start, end *time.Time

	if startStr != "" && startStr != ".." {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start datetime: %w", err)
		}
		start = &t
	}

	if endStr != "" && endStr != ".." {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end datetime: %w", err)
		}
		end = &t
	}

	return start, end, nil
}
