package features

import (
	"fmt"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

// Resolve shapes the table to exactly the required columns, in the required order.
// Required columns that are absent are zero-filled; callers populate externally
// supplied covariates (lags) before or after resolution.
func Resolve(table *Table, required []string) (*Table, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil table", forecasting.ErrMissingFeature)
	}
	for _, name := range required {
		table.AddZeros(name)
	}
	return table.Select(required)
}

// EnsureColumns checks that the table holds exactly the required columns in order.
func EnsureColumns(table *Table, required []string) error {
	if table == nil {
		return fmt.Errorf("%w: nil table", forecasting.ErrMissingFeature)
	}
	cols := table.Columns()
	for i, name := range required {
		if !table.Has(name) {
			return fmt.Errorf("%w: %s is in exog_columns but was not produced", forecasting.ErrMissingFeature, name)
		}
		if i >= len(cols) || cols[i] != name {
			return fmt.Errorf("%w: column %d is %q, expected %q", forecasting.ErrMissingFeature, i, columnAt(cols, i), name)
		}
	}
	if len(cols) != len(required) {
		return fmt.Errorf("%w: table has %d columns, model expects %d", forecasting.ErrMissingFeature, len(cols), len(required))
	}
	return nil
}

func columnAt(cols []string, i int) string {
	if i < len(cols) {
		return cols[i]
	}
	return ""
}
