package bank

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO date format used in requests, records and file names.
const DateLayout = "2006-01-02"

// DefaultLookbackDays is the window used when no start date is given.
const DefaultLookbackDays = 90

var ErrInvalidDateRange = errors.New("start date must be on or before end date")

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) StartString() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndString() string   { return r.End.Format(DateLayout) }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseDate: %q: %w", value, err)
	}
	return t, nil
}

// DetermineDateRange fills in a missing bound. With only start, end is today.
// With only end, start is daysBack before end. With neither, the range ends
// today. A non-positive daysBack means the default lookback.
func DetermineDateRange(daysBack int, start, end, today time.Time) (DateRange, error) {
	if daysBack <= 0 {
		daysBack = DefaultLookbackDays
	}
	today = truncateDay(today)

	switch {
	case !start.IsZero() && !end.IsZero():
	case !start.IsZero():
		end = today
	case !end.IsZero():
		start = truncateDay(end).AddDate(0, 0, -daysBack)
	default:
		end = today
		start = today.AddDate(0, 0, -daysBack)
	}

	start, end = truncateDay(start), truncateDay(end)
	if start.After(end) {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{Start: start, End: end}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
