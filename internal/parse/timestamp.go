package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	epochRe = regexp.MustCompile(`^\d{10}(\d{3})?$`)
	dayRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// DayLayout is the civil day format used throughout the engine.
const DayLayout = "2006-01-02"

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
}

// Fractional seconds are accepted after the seconds field even though the
// layouts do not spell them out.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Timestamp is a device-reported instant.
type Timestamp struct {
	Time time.Time
	// Naive is set when the input carried no zone or offset. Time is then
	// the wall clock read as UTC and still needs the gateway correction.
	Naive bool
}

// ParseTimestamp accepts RFC3339-style strings with or without an offset,
// and Unix epochs in seconds (10 digits) or milliseconds (13 digits).
func ParseTimestamp(raw string) (Timestamp, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Timestamp{}, fmt.Errorf("empty timestamp")
	}

	if epochRe.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("unable to parse epoch %q: %w", raw, err)
		}
		if len(s) == 13 {
			return Timestamp{Time: time.UnixMilli(n).UTC()}, nil
		}
		return Timestamp{Time: time.Unix(n, 0).UTC()}, nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t, Naive: true}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unable to parse timestamp: %q", raw)
}

// ParseDay validates a YYYY-MM-DD civil day string.
func ParseDay(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if !dayRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("unable to parse day: %q", raw)
	}
	d, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse day %q: %w", raw, err)
	}
	return d, nil
}
