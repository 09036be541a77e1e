package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

// Store is an in-memory implementation of the series, binding and point repositories
// for demo/testing. Bindings attach to series and points to bindings as in the SQL schema.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	series      map[int64]forecasting.Series
	bindings    map[int64]forecasting.Binding
	points      map[int64]map[int64]forecasting.Point
	failReplace error
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		series:   make(map[int64]forecasting.Series),
		bindings: make(map[int64]forecasting.Binding),
		points:   make(map[int64]map[int64]forecasting.Point),
	}
}

// FailReplaceWith makes the next ReplaceRange calls fail without writing.
func (s *Store) FailReplaceWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReplace = err
}

// Series returns the series repository view.
func (s *Store) Series() *SeriesRepository { return &SeriesRepository{store: s} }

// Bindings returns the binding repository view.
func (s *Store) Bindings() *BindingRepository { return &BindingRepository{store: s} }

// Points returns the point repository view.
func (s *Store) Points() *PointRepository { return &PointRepository{store: s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// SeriesRepository implements forecasting.SeriesRepository.
type SeriesRepository struct{ store *Store }

// Get loads a series by id.
func (r *SeriesRepository) Get(ctx context.Context, id int64) (forecasting.Series, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	series, ok := r.store.series[id]
	if !ok {
		return forecasting.Series{}, fmt.Errorf("%w: forecast %d", forecasting.ErrNotFound, id)
	}
	return series, nil
}

// List returns all series ordered by id.
func (r *SeriesRepository) List(ctx context.Context) ([]forecasting.Series, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]forecasting.Series, 0, len(r.store.series))
	for _, series := range r.store.series {
		out = append(out, series)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert stores a series keyed by name.
func (r *SeriesRepository) Upsert(ctx context.Context, series forecasting.Series) (int64, error) {
	_ = ctx
	if err := series.Validate(); err != nil {
		return 0, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, existing := range r.store.series {
		if existing.Name == series.Name {
			series.ID = id
			series.CreatedAt = existing.CreatedAt
			r.store.series[id] = series
			return id, nil
		}
	}
	series.ID = r.store.id()
	if series.CreatedAt.IsZero() {
		series.CreatedAt = time.Now().UTC()
	}
	r.store.series[series.ID] = series
	return series.ID, nil
}

// BindingRepository implements forecasting.BindingRepository.
type BindingRepository struct{ store *Store }

// Get loads a binding by id.
func (r *BindingRepository) Get(ctx context.Context, id int64) (forecasting.Binding, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	binding, ok := r.store.bindings[id]
	if !ok {
		return forecasting.Binding{}, fmt.Errorf("%w: model %d", forecasting.ErrNotFound, id)
	}
	return r.store.withSeriesName(binding), nil
}

// List returns all bindings ordered by id.
func (r *BindingRepository) List(ctx context.Context) ([]forecasting.Binding, error) {
	return r.filter(ctx, func(forecasting.Binding) bool { return true }), nil
}

// ListBySeries returns the bindings of one series.
func (r *BindingRepository) ListBySeries(ctx context.Context, seriesID int64) ([]forecasting.Binding, error) {
	return r.filter(ctx, func(b forecasting.Binding) bool { return b.SeriesID == seriesID }), nil
}

// FindBySeriesGranularity returns the lowest-id binding of a series at a granularity.
func (r *BindingRepository) FindBySeriesGranularity(ctx context.Context, seriesID int64, g forecasting.Granularity) (forecasting.Binding, error) {
	matches := r.filter(ctx, func(b forecasting.Binding) bool { return b.SeriesID == seriesID && b.Granularity == g })
	if len(matches) == 0 {
		return forecasting.Binding{}, fmt.Errorf("%w: no %s model for forecast %d", forecasting.ErrNotFound, g, seriesID)
	}
	return matches[0], nil
}

// Upsert stores a binding keyed by (series, name).
func (r *BindingRepository) Upsert(ctx context.Context, binding forecasting.Binding) (int64, error) {
	_ = ctx
	if err := binding.Validate(); err != nil {
		return 0, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.series[binding.SeriesID]; !ok {
		return 0, fmt.Errorf("%w: forecast %d", forecasting.ErrNotFound, binding.SeriesID)
	}
	for id, existing := range r.store.bindings {
		if existing.SeriesID == binding.SeriesID && existing.Name == binding.Name {
			binding.ID = id
			binding.CreatedAt = existing.CreatedAt
			r.store.bindings[id] = binding
			return id, nil
		}
	}
	binding.ID = r.store.id()
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now().UTC()
	}
	r.store.bindings[binding.ID] = binding
	return binding.ID, nil
}

func (r *BindingRepository) filter(ctx context.Context, keep func(forecasting.Binding) bool) []forecasting.Binding {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]forecasting.Binding, 0)
	for _, binding := range r.store.bindings {
		if keep(binding) {
			out = append(out, r.store.withSeriesName(binding))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) withSeriesName(binding forecasting.Binding) forecasting.Binding {
	if series, ok := s.series[binding.SeriesID]; ok {
		binding.SeriesName = series.Name
	}
	return binding
}

// PointRepository implements forecasting.PointRepository.
type PointRepository struct{ store *Store }

// ReplaceRange deletes the binding's points in range and inserts points, dropping
// duplicate timestamps. The write is applied under one lock.
func (r *PointRepository) ReplaceRange(ctx context.Context, bindingID int64, stored forecasting.Range, points []forecasting.Point) error {
	_ = ctx
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failReplace != nil {
		return r.store.failReplace
	}
	if _, ok := r.store.bindings[bindingID]; !ok {
		return fmt.Errorf("%w: model %d", forecasting.ErrNotFound, bindingID)
	}
	byTime := r.store.points[bindingID]
	if byTime == nil {
		byTime = make(map[int64]forecasting.Point)
		r.store.points[bindingID] = byTime
	}
	for key, point := range byTime {
		if stored.Contains(point.At) {
			delete(byTime, key)
		}
	}
	now := time.Now().UTC()
	for _, point := range points {
		key := point.At.UnixNano()
		if _, exists := byTime[key]; exists {
			continue
		}
		point.ID = r.store.id()
		point.BindingID = bindingID
		point.At = point.At.UTC()
		point.CreatedAt = now
		byTime[key] = point
	}
	return nil
}

// Upsert writes or overwrites one point.
func (r *PointRepository) Upsert(ctx context.Context, point forecasting.Point) error {
	_ = ctx
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.bindings[point.BindingID]; !ok {
		return fmt.Errorf("%w: model %d", forecasting.ErrNotFound, point.BindingID)
	}
	byTime := r.store.points[point.BindingID]
	if byTime == nil {
		byTime = make(map[int64]forecasting.Point)
		r.store.points[point.BindingID] = byTime
	}
	key := point.At.UnixNano()
	if existing, ok := byTime[key]; ok {
		point.ID = existing.ID
	} else {
		point.ID = r.store.id()
	}
	point.At = point.At.UTC()
	point.CreatedAt = time.Now().UTC()
	byTime[key] = point
	return nil
}

// CountRange counts the binding's points inside the stored range.
func (r *PointRepository) CountRange(ctx context.Context, bindingID int64, stored forecasting.Range) (int, error) {
	_ = ctx
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, point := range r.store.points[bindingID] {
		if stored.Contains(point.At) {
			count++
		}
	}
	return count, nil
}

// List returns matching points ordered by timestamp.
func (r *PointRepository) List(ctx context.Context, query forecasting.PointQuery) ([]forecasting.Point, error) {
	_ = ctx
	if query.SeriesID == 0 && query.BindingID == 0 {
		return nil, errors.New("memory point repo: query needs a series or binding")
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]forecasting.Point, 0)
	for bindingID, byTime := range r.store.points {
		binding := r.store.bindings[bindingID]
		if query.BindingID != 0 && bindingID != query.BindingID {
			continue
		}
		if query.SeriesID != 0 && binding.SeriesID != query.SeriesID {
			continue
		}
		for _, point := range byTime {
			if !query.Start.IsZero() && point.At.Before(query.Start) {
				continue
			}
			if !query.End.IsZero() && point.At.After(query.End) {
				continue
			}
			out = append(out, point)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].BindingID < out[j].BindingID
		}
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}

// Count returns every stored point.
func (r *PointRepository) Count() int {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	total := 0
	for _, byTime := range r.store.points {
		total += len(byTime)
	}
	return total
}

var (
	_ forecasting.SeriesRepository  = (*SeriesRepository)(nil)
	_ forecasting.BindingRepository = (*BindingRepository)(nil)
	_ forecasting.PointRepository   = (*PointRepository)(nil)
)
