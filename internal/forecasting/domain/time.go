package forecasting

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DefaultTimezone is the wall clock the models were trained against.
	DefaultTimezone = "America/Sao_Paulo"
	// StorageOffset shifts a naive local timestamp to the instant it is stored under.
	StorageOffset = 3 * time.Hour
)

// Range is an inclusive [Start, End] pair of naive local timestamps.
// Naive values carry the local wall clock in the UTC location.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// String renders the range for logs.
func (r Range) String() string {
	return r.Start.Format("2006-01-02T15:04:05") + ".." + r.End.Format("2006-01-02T15:04:05")
}

// Normalizer converts offset-aware timestamps into the naive local representation
// the models use and into the instants predictions are stored under.
type Normalizer struct {
	loc    *time.Location
	offset time.Duration
}

// NewNormalizer builds a normalizer for the given zone and storage offset.
func NewNormalizer(loc *time.Location, storageOffset time.Duration) (*Normalizer, error) {
	if loc == nil {
		return nil, errors.New("forecasting: nil location")
	}
	return &Normalizer{loc: loc, offset: storageOffset}, nil
}

// NewDefaultNormalizer uses DefaultTimezone and StorageOffset.
func NewDefaultNormalizer() (*Normalizer, error) {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return nil, err
	}
	return NewNormalizer(loc, StorageOffset)
}

// Location returns the local zone.
func (n *Normalizer) Location() *time.Location { return n.loc }

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseInstant parses an ISO 8601 timestamp. Values without an offset are read as UTC;
// date-only values are read as local midnight.
func (n *Normalizer) ParseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidInput)
	}
	if day, err := time.ParseInLocation("2006-01-02", raw, n.loc); err == nil {
		return day, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q, use ISO 8601 (e.g. 2025-11-13T15:00:00Z)", ErrInvalidInput, raw)
}

// Local converts an instant to the naive local wall clock.
func (n *Normalizer) Local(t time.Time) time.Time {
	local := t.In(n.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
}

// ToStorage shifts a naive local timestamp to its stored instant.
func (n *Normalizer) ToStorage(naive time.Time) time.Time {
	return naive.Add(n.offset).UTC()
}

// FromStorage reverses ToStorage.
func (n *Normalizer) FromStorage(stored time.Time) time.Time {
	stored = stored.UTC()
	return stored.Add(-n.offset)
}

// StorageRange maps a local range to the stored instants it covers.
func (n *Normalizer) StorageRange(r Range) Range {
	return Range{Start: n.ToStorage(r.Start), End: n.ToStorage(r.End)}
}

// Display renders a stored instant in the local zone.
func (n *Normalizer) Display(stored time.Time) time.Time {
	return stored.In(n.loc)
}

// NormalizeInstant converts one raw timestamp to the naive local step it belongs to.
func (n *Normalizer) NormalizeInstant(raw string, g Granularity) (time.Time, error) {
	if !g.IsValid() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedGranularity, g)
	}
	t, err := n.ParseInstant(raw)
	if err != nil {
		return time.Time{}, err
	}
	return g.Align(n.Local(t)), nil
}

// Normalize converts a raw [start, end] pair to a naive local range aligned to the granularity.
// Daily ranges snap both ends to midnight, so any time-of-day yields a day-aligned range.
func (n *Normalizer) Normalize(startRaw, endRaw string, g Granularity) (Range, error) {
	start, err := n.NormalizeInstant(startRaw, g)
	if err != nil {
		return Range{}, err
	}
	end, err := n.NormalizeInstant(endRaw, g)
	if err != nil {
		return Range{}, err
	}
	if start.After(end) {
		return Range{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidDateRange, start.Format(time.DateTime), end.Format(time.DateTime))
	}
	return Range{Start: start, End: end}, nil
}
