package daterange

import (
	"fmt"
	"time"
)

// Granularity is the calendar display mode determining the fetch window.
type Granularity string

const (
	Day    Granularity = "day"
	Week   Granularity = "week"
	Month  Granularity = "month"
	Agenda Granularity = "agenda"
)

// ParseGranularity validates a client-supplied view string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Day, Week, Month, Agenda:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Range is an inclusive date window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NavAction is a calendar navigation gesture.
type NavAction string

const (
	NavPrev  NavAction = "prev"
	NavNext  NavAction = "next"
	NavToday NavAction = "today"
)

// Resolve computes the window to fetch and filter against. Pure function:
// identical inputs always yield identical ranges.
//
// month covers whole grid weeks so the rendered month grid has no partial
// leading or trailing week; week and agenda use ISO week boundaries (Monday
// start); day spans midnight to 23:59:59.
func Resolve(anchor time.Time, g Granularity) Range {
	switch g {
	case Month:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		last := first.AddDate(0, 1, -1)
		return Range{
			Start: startOfWeek(first),
			End:   endOfDay(startOfWeek(last).AddDate(0, 0, 6)),
		}
	case Week, Agenda:
		start := startOfWeek(anchor)
		return Range{Start: start, End: endOfDay(start.AddDate(0, 0, 6))}
	default: // Day
		return Range{Start: startOfDay(anchor), End: endOfDay(anchor)}
	}
}

// Navigate recomputes the anchor for a navigation gesture. The caller then
// resolves the new range and refetches.
func Navigate(anchor time.Time, g Granularity, action NavAction, now time.Time) time.Time {
	step := 1
	switch action {
	case NavToday:
		return now
	case NavPrev:
		step = -1
	case NavNext:
		step = 1
	default:
		return anchor
	}

	switch g {
	case Month:
		return anchor.AddDate(0, step, 0)
	case Week, Agenda:
		return anchor.AddDate(0, 0, 7*step)
	default:
		return anchor.AddDate(0, 0, step)
	}
}

// Days enumerates every day of the range, midnight-aligned.
func Days(r Range) []time.Time {
	var out []time.Time
	for d := startOfDay(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether t falls inside the range.
func Contains(r Range, t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// startOfWeek returns the Monday of the ISO week containing t.
func startOfWeek(t time.Time) time.Time {
	t = startOfDay(t)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -(weekday - 1))
}
