package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

const defaultPointTable = "forecast_points"

// PointRepository persists forecast points.
type PointRepository struct {
	db           *sql.DB
	table        string
	bindingTable string
}

// NewPointRepository constructs a repository. Options override the point table.
func NewPointRepository(db *sql.DB, opts ...RepositoryOption) (*PointRepository, error) {
	if db == nil {
		return nil, errors.New("point repo: nil db")
	}
	repo := &PointRepository{db: db, table: defaultPointTable, bindingTable: defaultBindingTable}
	for _, opt := range opts {
		opt(&repo.table)
	}
	return repo, nil
}

// ReplaceRange deletes the binding's points in the stored range and inserts points in
// one transaction. Duplicate timestamps are dropped by ON CONFLICT DO NOTHING.
func (r *PointRepository) ReplaceRange(ctx context.Context, bindingID int64, stored forecasting.Range, points []forecasting.Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	del := fmt.Sprintf(`
DELETE FROM %s
WHERE binding_id = $1
	AND prediction_datetime >= $2
	AND prediction_datetime <= $3`, r.table)
	if _, err := tx.ExecContext(ctx, del, bindingID, stored.Start.UTC(), stored.End.UTC()); err != nil {
		_ = tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (binding_id, prediction_datetime, value)
VALUES ($1, $2, $3)
ON CONFLICT (binding_id, prediction_datetime) DO NOTHING`, r.table))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, point := range points {
		if _, err := stmt.ExecContext(ctx, bindingID, point.At.UTC(), point.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Upsert writes or overwrites one point.
func (r *PointRepository) Upsert(ctx context.Context, point forecasting.Point) error {
	query := fmt.Sprintf(`
INSERT INTO %s (binding_id, prediction_datetime, value)
VALUES ($1, $2, $3)
ON CONFLICT (binding_id, prediction_datetime) DO UPDATE SET
	value = EXCLUDED.value,
	created_at = now()`, r.table)
	_, err := r.db.ExecContext(ctx, query, point.BindingID, point.At.UTC(), point.Value)
	return err
}

// CountRange counts the binding's points inside the stored range.
func (r *PointRepository) CountRange(ctx context.Context, bindingID int64, stored forecasting.Range) (int, error) {
	query := fmt.Sprintf(`
SELECT COUNT(*)
FROM %s
WHERE binding_id = $1
	AND prediction_datetime >= $2
	AND prediction_datetime <= $3`, r.table)
	var count int
	err := r.db.QueryRowContext(ctx, query, bindingID, stored.Start.UTC(), stored.End.UTC()).Scan(&count)
	return count, err
}

// List returns matching points ordered by timestamp ascending.
func (r *PointRepository) List(ctx context.Context, q forecasting.PointQuery) ([]forecasting.Point, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.SeriesID != 0 {
		add("b.series_id = $%d", q.SeriesID)
	}
	if q.BindingID != 0 {
		add("p.binding_id = $%d", q.BindingID)
	}
	if !q.Start.IsZero() {
		add("p.prediction_datetime >= $%d", q.Start.UTC())
	}
	if !q.End.IsZero() {
		add("p.prediction_datetime <= $%d", q.End.UTC())
	}
	if len(where) == 0 {
		return nil, errors.New("point repo: query needs a series or binding")
	}
	query := fmt.Sprintf(`
SELECT p.id, p.binding_id, p.prediction_datetime, p.value, p.created_at
FROM %s p
JOIN %s b ON b.id = p.binding_id
WHERE %s
ORDER BY p.prediction_datetime ASC, p.binding_id ASC`, r.table, r.bindingTable, strings.Join(where, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []forecasting.Point
	for rows.Next() {
		var p forecasting.Point
		if err := rows.Scan(&p.ID, &p.BindingID, &p.At, &p.Value, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.At = p.At.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}

var (
	_ forecasting.SeriesRepository  = (*SeriesRepository)(nil)
	_ forecasting.BindingRepository = (*BindingRepository)(nil)
	_ forecasting.PointRepository   = (*PointRepository)(nil)
)
