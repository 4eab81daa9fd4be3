// Package clock pins every attendance computation to one civil timezone.
//
// Civil days are carried as "YYYY-MM-DD" strings. All bucketing, range
// boundaries and outbound timestamps go through a *Clock so that "today"
// means the same thing in the ledger, the registry and the reports.
package clock

import (
	"fmt"
	"time"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/parse"
)

// DayLayout is the civil day format.
const DayLayout = parse.DayLayout

// Clock converts instants to and from the canonical timezone.
type Clock struct {
	loc          *time.Location
	deviceOffset time.Duration
	now          func() time.Time
}

// New loads the timezone. deviceOffset is added to zone-less device
// timestamps before bucketing. A nil now uses time.Now.
func New(timezone string, deviceOffset time.Duration, now func() time.Time) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{loc: loc, deviceOffset: deviceOffset, now: now}, nil
}

// Location returns the canonical timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the canonical timezone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// In converts t to the canonical timezone.
func (c *Clock) In(t time.Time) time.Time { return t.In(c.loc) }

// Format renders t as ISO-8601 in the canonical timezone.
func (c *Clock) Format(t time.Time) string { return t.In(c.loc).Format(time.RFC3339) }

// Day returns the civil day containing t.
func (c *Clock) Day(t time.Time) string { return t.In(c.loc).Format(DayLayout) }

// Today returns the current civil day.
func (c *Clock) Today() string { return c.Day(c.now()) }

// StartOfDay returns the first instant of day.
func (c *Clock) StartOfDay(day string) (time.Time, error) {
	d, err := parse.ParseDay(day)
	if err != nil {
		return time.Time{}, apperr.Invalid("%v", err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc), nil
}

// NextDay returns the civil day after day.
func (c *Clock) NextDay(day string) (string, error) {
	d, err := parse.ParseDay(day)
	if err != nil {
		return "", apperr.Invalid("%v", err)
	}
	return d.AddDate(0, 0, 1).Format(DayLayout), nil
}

// EndOfDay returns the last instant of day, one nanosecond before the
// next day boundary.
func (c *Clock) EndOfDay(day string) (time.Time, error) {
	next, err := c.NextDay(day)
	if err != nil {
		return time.Time{}, err
	}
	start, err := c.StartOfDay(next)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(-time.Nanosecond), nil
}

// DaysInclusive counts the civil days in [start, end].
func (c *Clock) DaysInclusive(start, end string) (int, error) {
	s, err := parse.ParseDay(start)
	if err != nil {
		return 0, apperr.Invalid("%v", err)
	}
	e, err := parse.ParseDay(end)
	if err != nil {
		return 0, apperr.Invalid("%v", err)
	}
	if e.Before(s) {
		return 0, apperr.Invalid("end day %s is before start day %s", end, start)
	}
	// Both are UTC midnights, so the difference is a whole number of days.
	return int(e.Sub(s).Hours()/24) + 1, nil
}

// DeviceTime interprets a timestamp reported by a field device. Zone-less
// values are read as UTC wall time and shifted by the gateway offset.
func (c *Clock) DeviceTime(raw string) (time.Time, error) {
	ts, err := parse.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", apperr.ErrInvalidTimestamp, err)
	}
	t := ts.Time
	if ts.Naive {
		t = t.Add(c.deviceOffset)
	}
	return t.In(c.loc), nil
}

// ObservedAt resolves the instant a scan happened. An empty or unparseable
// raw value falls back to the current time; fellBack reports the latter.
func (c *Clock) ObservedAt(raw string) (t time.Time, fellBack bool, err error) {
	if raw == "" {
		return c.Now(), false, nil
	}
	t, err = c.DeviceTime(raw)
	if err != nil {
		return c.Now(), true, err
	}
	return t, false, nil
}

// ParseInstant reads an operator-supplied time. A bare day means its start;
// zone-less timestamps are wall time in the canonical timezone.
func (c *Clock) ParseInstant(raw string) (time.Time, error) {
	if _, err := parse.ParseDay(raw); err == nil {
		return c.StartOfDay(raw)
	}
	ts, err := parse.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", apperr.ErrInvalidTimestamp, err)
	}
	t := ts.Time
	if ts.Naive {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), c.loc)
	}
	return t.In(c.loc), nil
}

// ParseDay accepts a bare day or any instant ParseInstant understands and
// returns the civil day it falls on.
func (c *Clock) ParseDay(raw string) (string, error) {
	t, err := c.ParseInstant(raw)
	if err != nil {
		return "", err
	}
	return c.Day(t), nil
}
