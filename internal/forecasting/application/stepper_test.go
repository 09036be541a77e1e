package application

import (
	"context"
	"errors"
	"testing"
	"time"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
)

type stubLagReader struct {
	calls []time.Time
	value float64
	err   error
}

func (r *stubLagReader) ValueAt(ctx context.Context, externalID string, at time.Time) (float64, error) {
	r.calls = append(r.calls, at)
	if r.err != nil {
		return 0, r.err
	}
	return r.value, nil
}

type failingPredictor struct {
	stubPredictor
	failAt int
}

func (p *failingPredictor) Predict(matrix *features.Table) ([]float64, error) {
	if len(p.seen) == p.failAt {
		return nil, errors.New("model exploded")
	}
	return p.stubPredictor.Predict(matrix)
}

func hourlyBinding(cols ...string) forecasting.Binding {
	return forecasting.Binding{
		Family:      forecasting.FamilyGradientBoostedTree,
		Granularity: forecasting.GranularityHourly,
		ExogColumns: cols,
	}
}

func newStepper(t *testing.T, f fixture, loader *stubLoader, lags LagReader) *BatchStepper {
	t.Helper()
	s, err := NewBatchStepper(f.store.Series(), f.store.Bindings(), f.store.Points(), loader, nil, f.normalizer, lags, nil)
	if err != nil {
		t.Fatalf("stepper: %v", err)
	}
	return s
}

func floatPtr(v float64) *float64 { return &v }

func TestBatchStepper_FeedsPredictionsForward(t *testing.T) {
	f := newFixture(t, hourlyBinding(forecasting.LagPreviousHour, features.ColHourSin))
	model := &stubPredictor{values: []float64{15, 30, 45}}
	s := newStepper(t, f, &stubLoader{model: model}, nil)

	result, err := s.Run(context.Background(), BatchRequest{
		SeriesID:        f.series.ID,
		Start:           "2025-11-13T15:00:00Z",
		End:             "2025-11-13T17:00:00Z",
		Granularity:     "H",
		InitialPrevHour: floatPtr(10),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Points) != 3 || len(model.seen) != 3 {
		t.Fatalf("expected 3 steps, got %d points %d calls", len(result.Points), len(model.seen))
	}
	lags := make([]float64, 3)
	for i, m := range model.seen {
		lags[i], _ = m.Value(forecasting.LagPreviousHour, 0)
	}
	if lags[0] != 10 || lags[1] != 15 || lags[2] != 30 {
		t.Fatalf("expected lags [10 15 30], got %v", lags)
	}
	if f.store.Points().Count() != 3 {
		t.Fatalf("expected 3 stored points")
	}
}

func TestBatchStepper_PreviousDayLag(t *testing.T) {
	f := newFixture(t, hourlyBinding(forecasting.LagPreviousHour, forecasting.LagPreviousDay))
	model := &stubPredictor{values: []float64{1, 2, 3, 4, 5}}
	lags := &stubLagReader{value: 99}
	s := newStepper(t, f, &stubLoader{model: model}, lags)

	_, err := s.Run(context.Background(), BatchRequest{
		SeriesID:        f.series.ID,
		Start:           "2025-11-13T03:00:00Z",
		End:             "2025-11-14T04:00:00Z",
		Granularity:     "hourly",
		InitialPrevHour: floatPtr(0),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(model.seen) != 26 || len(lags.calls) != 24 {
		t.Fatalf("expected 26 steps and 24 telemetry fetches, got %d and %d", len(model.seen), len(lags.calls))
	}
	if want := time.Date(2025, 11, 12, 3, 0, 0, 0, time.UTC); !lags.calls[0].Equal(want) {
		t.Fatalf("expected first fetch at %s, got %s", want, lags.calls[0])
	}
	first, _ := model.seen[0].Value(forecasting.LagPreviousDay, 0)
	day, _ := model.seen[24].Value(forecasting.LagPreviousDay, 0)
	if first != 99 || day != 1 {
		t.Fatalf("expected telemetry then own prediction, got %f and %f", first, day)
	}
}

func TestBatchStepper_Errors(t *testing.T) {
	f := newFixture(t, hourlyBinding(forecasting.LagPreviousHour))
	ctx := context.Background()
	model := &failingPredictor{stubPredictor: stubPredictor{values: []float64{1}}, failAt: 1}
	s := newStepper(t, f, &stubLoader{model: model}, nil)

	req := BatchRequest{SeriesID: f.series.ID, Start: "2025-11-13T15:00:00Z", End: "2025-11-13T17:00:00Z", Granularity: "H"}
	if _, err := s.Run(ctx, req); !errors.Is(err, forecasting.ErrMissingInitialFeature) {
		t.Fatalf("expected ErrMissingInitialFeature, got %v", err)
	}
	req.InitialPrevHour = floatPtr(3)
	if _, err := s.Run(ctx, req); err == nil {
		t.Fatalf("expected step failure")
	}
	if f.store.Points().Count() != 0 {
		t.Fatalf("failed batch must not write")
	}
	req.Granularity = "D"
	if _, err := s.Run(ctx, req); !errors.Is(err, forecasting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing daily binding, got %v", err)
	}
	if _, err := s.Run(ctx, BatchRequest{SeriesID: f.series.ID}); !errors.Is(err, forecasting.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBatchStepper_DailySkipsLags(t *testing.T) {
	f := newFixture(t, forecasting.Binding{
		Family:      forecasting.FamilyGradientBoostedTree,
		Granularity: forecasting.GranularityDaily,
	})
	model := &stubPredictor{values: []float64{4}}
	s := newStepper(t, f, &stubLoader{model: model}, nil)
	result, err := s.Run(context.Background(), BatchRequest{SeriesID: f.series.ID, Start: "2025-11-10", End: "2025-11-12", Granularity: "D"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Points) != 3 {
		t.Fatalf("expected 3 daily points, got %d", len(result.Points))
	}
}

func TestSinglePredictor_RequiresDeclaredLags(t *testing.T) {
	f := newFixture(t, hourlyBinding(forecasting.LagPreviousHour, features.ColHourCos))
	ctx := context.Background()
	model := &stubPredictor{values: []float64{8.9}}
	p, err := NewSinglePredictor(f.store.Series(), f.store.Bindings(), f.store.Points(), &stubLoader{model: model}, nil, f.normalizer, nil)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	req := SingleRequest{SeriesID: f.series.ID, Period: "2025-11-13T15:30:00Z", Granularity: "H"}
	if _, err := p.Predict(ctx, req); !errors.Is(err, forecasting.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	req.Lags = map[string]float64{forecasting.LagPreviousHour: 12}
	result, err := p.Predict(ctx, req)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if result.Point.Value != 8 {
		t.Fatalf("expected 8, got %f", result.Point.Value)
	}
	if want := time.Date(2025, 11, 13, 15, 0, 0, 0, time.UTC); !result.Point.At.Equal(want) {
		t.Fatalf("expected stored %s, got %s", want, result.Point.At)
	}
	if lag, _ := model.seen[0].Value(forecasting.LagPreviousHour, 0); lag != 12 {
		t.Fatalf("expected supplied lag 12, got %f", lag)
	}
	if _, err := p.Predict(ctx, req); err != nil {
		t.Fatalf("predict again: %v", err)
	}
	if f.store.Points().Count() != 1 {
		t.Fatalf("single prediction must overwrite its point")
	}
}
