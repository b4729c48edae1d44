// Package period provides calendar-aware time bucketing: a bucket is
// a calendar day, ISO week, month, quarter or year, not a fixed-length
// window, so the same instant always lands in the same bucket
// regardless of query range boundaries.
package period

import (
	"errors"
	"time"
)

// Frequency selects the bucketing granularity.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

var ErrUnknownFrequency = errors.New("unknown_frequency")

// Parse validates a frequency string.
func Parse(value string) (Frequency, error) {
	switch Frequency(value) {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
		return Frequency(value), nil
	}
	return "", ErrUnknownFrequency
}

// StartOf truncates an instant to the start of its bucket, in UTC.
// Weeks start on Monday (ISO 8601).
func StartOf(t time.Time, f Frequency) time.Time {
	t = t.UTC()
	year, month, day := t.Date()
	switch f {
	case Daily:
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	case Weekly:
		offset := int(t.Weekday()-time.Monday+7) % 7
		return time.Date(year, month, day-offset, 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case Quarterly:
		quarter := (int(month) - 1) / 3
		return time.Date(year, time.Month(quarter*3+1), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Next returns the start of the following bucket.
func Next(start time.Time, f Frequency) time.Time {
	switch f {
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	case Quarterly:
		return start.AddDate(0, 3, 0)
	case Yearly:
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 0, 1)
}

// EndOf returns the exclusive end of the bucket containing t.
func EndOf(t time.Time, f Frequency) time.Time {
	return Next(StartOf(t, f), f)
}
