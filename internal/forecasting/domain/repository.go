package forecasting

import (
	"context"
	"time"
)

// SeriesRepository persists forecast series.
type SeriesRepository interface {
	Get(ctx context.Context, id int64) (Series, error)
	List(ctx context.Context) ([]Series, error)
	// Upsert stores a series keyed by name and returns its id.
	Upsert(ctx context.Context, series Series) (int64, error)
}

// BindingRepository persists model bindings.
type BindingRepository interface {
	Get(ctx context.Context, id int64) (Binding, error)
	List(ctx context.Context) ([]Binding, error)
	ListBySeries(ctx context.Context, seriesID int64) ([]Binding, error)
	// FindBySeriesGranularity returns the first binding of a series at a granularity.
	FindBySeriesGranularity(ctx context.Context, seriesID int64, g Granularity) (Binding, error)
	// Upsert stores a binding keyed by (series, name) and returns its id.
	Upsert(ctx context.Context, binding Binding) (int64, error)
}

// PointQuery filters stored points. Zero values mean "no filter"; bounds are stored instants.
type PointQuery struct {
	SeriesID  int64
	BindingID int64
	Start     time.Time
	End       time.Time
}

// PointRepository persists forecast points.
type PointRepository interface {
	// ReplaceRange deletes the binding's points inside the stored range and inserts points,
	// ignoring duplicate timestamps, as one atomic write.
	ReplaceRange(ctx context.Context, bindingID int64, stored Range, points []Point) error
	// Upsert writes or overwrites one point.
	Upsert(ctx context.Context, point Point) error
	CountRange(ctx context.Context, bindingID int64, stored Range) (int, error)
	// List returns matching points ordered by timestamp ascending.
	List(ctx context.Context, query PointQuery) ([]Point, error)
}
