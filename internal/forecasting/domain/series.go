package forecasting

import (
	"errors"
	"strings"
	"time"
)

// Lag covariates supplied by callers or the telemetry system rather than synthesized.
const (
	LagPreviousHour = "ocupacao_hora_anterior"
	LagPreviousDay  = "ocupacao_dia_anterior"
)

// Series is a named logical time series (e.g. "occupancy").
type Series struct {
	ID          int64
	Name        string
	Description string
	// ExternalID identifies the entity in the telemetry system that holds ground-truth values.
	ExternalID string
	CreatedAt  time.Time
}

// Validate ensures basic invariants.
func (s Series) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("forecasting: empty series name")
	}
	if len(s.Name) > 100 {
		return errors.New("forecasting: series name too long")
	}
	return nil
}

// Binding associates a series with one fitted model artifact.
// A series has at most one binding per granularity in normal operation.
type Binding struct {
	ID          int64
	SeriesID    int64
	SeriesName  string
	Name        string
	Path        string
	Family      Family
	Granularity Granularity
	// ExogColumns is the ordered covariate list the model expects.
	ExogColumns []string
	// ExogRules maps a covariate name to a rule value, usually a list of dates.
	ExogRules map[string]any
	CreatedAt time.Time
}

// Declares reports whether the model expects the named covariate.
func (b Binding) Declares(name string) bool {
	for _, col := range b.ExogColumns {
		if col == name {
			return true
		}
	}
	return false
}

// Validate ensures basic invariants.
func (b Binding) Validate() error {
	if b.SeriesID <= 0 {
		return errors.New("forecasting: binding without series")
	}
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("forecasting: empty binding name")
	}
	if strings.TrimSpace(b.Path) == "" {
		return errors.New("forecasting: empty model path")
	}
	if !b.Granularity.IsValid() {
		return ErrUnsupportedGranularity
	}
	return nil
}

// String renders "<series> - <name> (<granularity>)".
func (b Binding) String() string {
	return b.SeriesName + " - " + b.Name + " (" + string(b.Granularity) + ")"
}

// Point is one stored forecast value. At is a UTC instant.
type Point struct {
	ID        int64
	BindingID int64
	At        time.Time
	Value     float64
	CreatedAt time.Time
}
