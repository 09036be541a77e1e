package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

const defaultSeriesTable = "forecast_series"

// SeriesRepository persists forecast series.
type SeriesRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures a repository's table name.
type RepositoryOption func(*string)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(target *string) {
		if table != "" {
			*target = table
		}
	}
}

// NewSeriesRepository constructs a repository.
func NewSeriesRepository(db *sql.DB, opts ...RepositoryOption) (*SeriesRepository, error) {
	if db == nil {
		return nil, errors.New("series repo: nil db")
	}
	repo := &SeriesRepository{db: db, table: defaultSeriesTable}
	for _, opt := range opts {
		opt(&repo.table)
	}
	return repo, nil
}

// Get loads a series by id.
func (r *SeriesRepository) Get(ctx context.Context, id int64) (forecasting.Series, error) {
	query := fmt.Sprintf(`
SELECT id, name, description, external_id, created_at
FROM %s
WHERE id = $1`, r.table)
	series, err := scanSeries(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return forecasting.Series{}, fmt.Errorf("%w: forecast %d", forecasting.ErrNotFound, id)
	}
	return series, err
}

// List returns all series ordered by id.
func (r *SeriesRepository) List(ctx context.Context) ([]forecasting.Series, error) {
	query := fmt.Sprintf(`
SELECT id, name, description, external_id, created_at
FROM %s
ORDER BY id ASC`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []forecasting.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, series)
	}
	return result, rows.Err()
}

// Upsert stores a series keyed by name.
func (r *SeriesRepository) Upsert(ctx context.Context, series forecasting.Series) (int64, error) {
	if err := series.Validate(); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (name, description, external_id)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET
	description = EXCLUDED.description,
	external_id = EXCLUDED.external_id
RETURNING id`, r.table)
	var id int64
	err := r.db.QueryRowContext(ctx, query, series.Name, series.Description, series.ExternalID).Scan(&id)
	return id, err
}

func scanSeries(scanner interface{ Scan(dest ...any) error }) (forecasting.Series, error) {
	var series forecasting.Series
	if err := scanner.Scan(&series.ID, &series.Name, &series.Description, &series.ExternalID, &series.CreatedAt); err != nil {
		return forecasting.Series{}, err
	}
	series.CreatedAt = series.CreatedAt.UTC()
	return series, nil
}
