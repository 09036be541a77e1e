package forecasting

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the fixed step between successive forecast points.
type Granularity string

const (
	GranularityDaily  Granularity = "D"
	GranularityHourly Granularity = "H"
)

// ParseGranularity accepts the persisted codes and their long names.
func ParseGranularity(value string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "d", "day", "daily":
		return GranularityDaily, nil
	case "h", "hour", "hourly":
		return GranularityHourly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGranularity, value)
	}
}

// IsValid checks if the granularity is one of the supported values.
func (g Granularity) IsValid() bool {
	return g == GranularityDaily || g == GranularityHourly
}

// String returns the persisted code.
func (g Granularity) String() string { return string(g) }

// Align snaps t to the start of its step: midnight for daily, the top of the hour for hourly.
func (g Granularity) Align(t time.Time) time.Time {
	switch g {
	case GranularityDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case GranularityHourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	default:
		return t
	}
}

// Next returns the step following t.
func (g Granularity) Next(t time.Time) time.Time {
	if g == GranularityDaily {
		return t.AddDate(0, 0, 1)
	}
	return t.Add(time.Hour)
}

// Horizon lists every step from start to end inclusive.
func (g Granularity) Horizon(start, end time.Time) []time.Time {
	if !g.IsValid() || start.After(end) {
		return nil
	}
	var steps []time.Time
	for at := start; !at.After(end); at = g.Next(at) {
		steps = append(steps, at)
	}
	return steps
}

// ExpectedCount is the number of points a fully covered [start, end] range holds:
// the inclusive day count for daily, the inclusive hour count for hourly.
func (g Granularity) ExpectedCount(start, end time.Time) int {
	if start.After(end) {
		return 0
	}
	switch g {
	case GranularityDaily:
		startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
		return int(endDay.Sub(startDay).Hours()/24) + 1
	case GranularityHourly:
		return int(end.Sub(start)/time.Hour) + 1
	default:
		return 0
	}
}
