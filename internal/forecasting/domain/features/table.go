// Package features builds the covariate tables fitted models are fed with.
package features

import (
	"fmt"
	"time"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

// Table is a column-oriented feature matrix indexed by timestamp.
// Column order is significant: array-based predictors read it positionally.
type Table struct {
	index   []time.Time
	columns []string
	data    map[string][]float64
}

// NewTable creates an empty table over the given index.
func NewTable(index []time.Time) *Table {
	idx := make([]time.Time, len(index))
	copy(idx, index)
	return &Table{index: idx, data: make(map[string][]float64)}
}

// Len returns the row count.
func (t *Table) Len() int { return len(t.index) }

// Index returns a copy of the row timestamps.
func (t *Table) Index() []time.Time {
	out := make([]time.Time, len(t.index))
	copy(out, t.index)
	return out
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.data[name]
	return ok
}

// Column returns a copy of a column's values.
func (t *Table) Column(name string) ([]float64, bool) {
	values, ok := t.data[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, true
}

// Value returns one cell.
func (t *Table) Value(name string, row int) (float64, bool) {
	values, ok := t.data[name]
	if !ok || row < 0 || row >= len(values) {
		return 0, false
	}
	return values[row], true
}

// Set replaces or appends a column.
func (t *Table) Set(name string, values []float64) error {
	if len(values) != len(t.index) {
		return fmt.Errorf("features: column %q has %d values, table has %d rows", name, len(values), len(t.index))
	}
	if _, ok := t.data[name]; !ok {
		t.columns = append(t.columns, name)
	}
	col := make([]float64, len(values))
	copy(col, values)
	t.data[name] = col
	return nil
}

// SetAt sets one cell of an existing column.
func (t *Table) SetAt(name string, row int, value float64) error {
	values, ok := t.data[name]
	if !ok {
		return fmt.Errorf("%w: %s", forecasting.ErrMissingFeature, name)
	}
	if row < 0 || row >= len(values) {
		return fmt.Errorf("features: row %d out of range", row)
	}
	values[row] = value
	return nil
}

// AddZeros appends a zero-filled column when it does not exist yet.
func (t *Table) AddZeros(name string) {
	if t.Has(name) {
		return
	}
	t.columns = append(t.columns, name)
	t.data[name] = make([]float64, len(t.index))
}

// Select returns a new table holding exactly the named columns, in that order.
func (t *Table) Select(names []string) (*Table, error) {
	out := NewTable(t.index)
	for _, name := range names {
		values, ok := t.data[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", forecasting.ErrMissingFeature, name)
		}
		if err := out.Set(name, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Merge copies every column of other into t, overwriting columns with the same name.
func (t *Table) Merge(other *Table) error {
	if other == nil {
		return nil
	}
	if other.Len() != t.Len() {
		return fmt.Errorf("features: merge of %d rows into %d rows", other.Len(), t.Len())
	}
	for _, name := range other.columns {
		if err := t.Set(name, other.data[name]); err != nil {
			return err
		}
	}
	return nil
}

// Row returns one row in column order.
func (t *Table) Row(i int) []float64 {
	row := make([]float64, len(t.columns))
	for j, name := range t.columns {
		row[j] = t.data[name][i]
	}
	return row
}

// Rows returns the row-major matrix in column order.
func (t *Table) Rows() [][]float64 {
	rows := make([][]float64, len(t.index))
	for i := range t.index {
		rows[i] = t.Row(i)
	}
	return rows
}
