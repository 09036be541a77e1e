package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

const defaultBindingTable = "forecast_bindings"

// BindingRepository persists model bindings.
type BindingRepository struct {
	db          *sql.DB
	table       string
	seriesTable string
}

// NewBindingRepository constructs a repository. Options override the binding table.
func NewBindingRepository(db *sql.DB, opts ...RepositoryOption) (*BindingRepository, error) {
	if db == nil {
		return nil, errors.New("binding repo: nil db")
	}
	repo := &BindingRepository{db: db, table: defaultBindingTable, seriesTable: defaultSeriesTable}
	for _, opt := range opts {
		opt(&repo.table)
	}
	return repo, nil
}

func (r *BindingRepository) selectSQL(where string) string {
	return fmt.Sprintf(`
SELECT b.id, b.series_id, s.name, b.name, b.path, b.model_type, b.granularity,
	b.exog_columns, b.exog_rules, b.created_at
FROM %s b
JOIN %s s ON s.id = b.series_id
%s
ORDER BY b.id ASC`, r.table, r.seriesTable, where)
}

// Get loads a binding by id.
func (r *BindingRepository) Get(ctx context.Context, id int64) (forecasting.Binding, error) {
	binding, err := scanBinding(r.db.QueryRowContext(ctx, r.selectSQL("WHERE b.id = $1"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return forecasting.Binding{}, fmt.Errorf("%w: model %d", forecasting.ErrNotFound, id)
	}
	return binding, err
}

// List returns all bindings ordered by id.
func (r *BindingRepository) List(ctx context.Context) ([]forecasting.Binding, error) {
	return r.query(ctx, r.selectSQL(""))
}

// ListBySeries returns the bindings of one series.
func (r *BindingRepository) ListBySeries(ctx context.Context, seriesID int64) ([]forecasting.Binding, error) {
	return r.query(ctx, r.selectSQL("WHERE b.series_id = $1"), seriesID)
}

// FindBySeriesGranularity returns the lowest-id binding of a series at a granularity.
func (r *BindingRepository) FindBySeriesGranularity(ctx context.Context, seriesID int64, g forecasting.Granularity) (forecasting.Binding, error) {
	bindings, err := r.query(ctx, r.selectSQL("WHERE b.series_id = $1 AND b.granularity = $2")+"\nLIMIT 1", seriesID, string(g))
	if err != nil {
		return forecasting.Binding{}, err
	}
	if len(bindings) == 0 {
		return forecasting.Binding{}, fmt.Errorf("%w: no %s model for forecast %d", forecasting.ErrNotFound, g, seriesID)
	}
	return bindings[0], nil
}

// Upsert stores a binding keyed by (series, name).
func (r *BindingRepository) Upsert(ctx context.Context, binding forecasting.Binding) (int64, error) {
	if err := binding.Validate(); err != nil {
		return 0, err
	}
	columns, err := marshalNullable(binding.ExogColumns, len(binding.ExogColumns) == 0)
	if err != nil {
		return 0, err
	}
	rules, err := marshalNullable(binding.ExogRules, len(binding.ExogRules) == 0)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (series_id, name, path, model_type, granularity, exog_columns, exog_rules)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (series_id, name) DO UPDATE SET
	path = EXCLUDED.path,
	model_type = EXCLUDED.model_type,
	granularity = EXCLUDED.granularity,
	exog_columns = EXCLUDED.exog_columns,
	exog_rules = EXCLUDED.exog_rules
RETURNING id`, r.table)
	var id int64
	err = r.db.QueryRowContext(ctx, query,
		binding.SeriesID, binding.Name, binding.Path, string(binding.Family), string(binding.Granularity), columns, rules,
	).Scan(&id)
	return id, err
}

func (r *BindingRepository) query(ctx context.Context, query string, args ...any) ([]forecasting.Binding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []forecasting.Binding
	for rows.Next() {
		binding, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, binding)
	}
	return result, rows.Err()
}

func scanBinding(scanner interface{ Scan(dest ...any) error }) (forecasting.Binding, error) {
	var (
		binding     forecasting.Binding
		family      string
		granularity string
		columns     []byte
		rules       []byte
	)
	if err := scanner.Scan(
		&binding.ID, &binding.SeriesID, &binding.SeriesName, &binding.Name, &binding.Path,
		&family, &granularity, &columns, &rules, &binding.CreatedAt,
	); err != nil {
		return forecasting.Binding{}, err
	}
	binding.Family = forecasting.ParseFamily(family)
	binding.Granularity = forecasting.Granularity(granularity)
	if len(columns) > 0 {
		if err := json.Unmarshal(columns, &binding.ExogColumns); err != nil {
			return forecasting.Binding{}, fmt.Errorf("binding %d exog_columns: %w", binding.ID, err)
		}
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &binding.ExogRules); err != nil {
			return forecasting.Binding{}, fmt.Errorf("binding %d exog_rules: %w", binding.ID, err)
		}
	}
	binding.CreatedAt = binding.CreatedAt.UTC()
	return binding, nil
}

func marshalNullable(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
