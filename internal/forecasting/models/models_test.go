package models

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
)

const sarimaxArtifact = `{
  "exog_names": ["is_weekend", "recesso"],
  "intercept": 50,
  "coefficients": {"is_weekend": -20, "recesso": -10},
  "ar": [0.5],
  "seasonal_ar": [],
  "seasonal_period": 7,
  "last_residuals": [1, 4]
}`

const prophetArtifact = `{
  "start": "2025-01-01T00:00:00Z",
  "t_scale": 86400,
  "y_scale": 10,
  "k": 0.1,
  "m": 1,
  "changepoints": [10],
  "delta": [-0.1],
  "seasonalities": [
    {"name": "daily_weekday", "period": 1, "fourier_order": 1, "beta": [0.5, 0], "condition_name": "weekday"}
  ]
}`

const lgbmArtifact = `{
  "feature_names": ["day", "is_holiday"],
  "tree_info": [
    {"tree_index": 0, "shrinkage": 1, "tree_structure": {
      "split_feature": 1, "threshold": 0.5, "decision_type": "<=", "default_left": true, "missing_type": "None",
      "left_child": {"split_feature": 0, "threshold": 15, "decision_type": "<=", "default_left": false, "missing_type": "NaN",
        "left_child": {"leaf_value": 10}, "right_child": {"leaf_value": 20}},
      "right_child": {"leaf_value": 1}
    }},
    {"tree_index": 1, "shrinkage": 0.1, "tree_structure": {"leaf_value": 0.5}}
  ]
}`

func dailyIndex(n int) []time.Time {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestExogRegression_Forecast(t *testing.T) {
	model, err := DecodeExogRegression([]byte(sarimaxArtifact))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	exog := features.NewTable(dailyIndex(2))
	_ = exog.Set("is_weekend", []float64{0, 1})
	_ = exog.Set("recesso", []float64{1, 0})
	got, err := model.Forecast(2, exog)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	// step 1: 50 - 10 + 0.5*4 = 42; step 2: 50 - 20 + 0.5*2 = 31
	if math.Abs(got[0]-42) > 1e-9 || math.Abs(got[1]-31) > 1e-9 {
		t.Fatalf("unexpected forecast %v", got)
	}

	wrong := features.NewTable(dailyIndex(2))
	_ = wrong.Set("is_weekend", []float64{0, 1})
	if _, err := model.Forecast(2, wrong); !errors.Is(err, forecasting.ErrMissingFeature) {
		t.Fatalf("expected ErrMissingFeature, got %v", err)
	}
}

func TestAdditiveRegression_PredictFrame(t *testing.T) {
	model, err := DecodeAdditiveRegression([]byte(prophetArtifact))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	index := []time.Time{
		time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC),
	}
	frame := features.NewTable(index)
	_ = frame.Set("weekday", []float64{0, 0})
	out, err := model.PredictFrame(frame)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	trend, _ := out.Column(ColTrend)
	// t=5: 0.1*5+1 = 1.5; t=20 after changepoint at 10: 0*20 + (1+1) = 2
	if math.Abs(trend[0]-15) > 1e-9 || math.Abs(trend[1]-20) > 1e-9 {
		t.Fatalf("unexpected trend %v", trend)
	}
	yhat, _ := out.Column(ColYhat)
	if yhat[0] != trend[0] {
		t.Fatalf("condition off should leave yhat == trend, got %v", yhat)
	}

	if _, err := model.PredictFrame(features.NewTable(index)); !errors.Is(err, forecasting.ErrMissingFeature) {
		t.Fatalf("expected ErrMissingFeature without condition column, got %v", err)
	}
}

func TestTreeEnsemble_Predict(t *testing.T) {
	model, err := DecodeTreeEnsemble([]byte(lgbmArtifact))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	matrix := features.NewTable(dailyIndex(4))
	_ = matrix.Set("day", []float64{3, 20, math.NaN(), 3})
	_ = matrix.Set("is_holiday", []float64{0, 0, 0, 1})
	got, err := model.Predict(matrix)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	want := []float64{10.5, 20.5, 20.5, 1.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("row %d: got %f want %f", i, got[i], want[i])
		}
	}
	if _, err := DecodeTreeEnsemble([]byte(`{"feature_names":["a"],"tree_info":[{"tree_structure":{"split_feature":3,"threshold":1,"left_child":{},"right_child":{}}}]}`)); !errors.Is(err, forecasting.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func writeArtifact(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return name
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)
	ctx := context.Background()

	cases := []struct {
		family forecasting.Family
		body   string
	}{
		{forecasting.FamilyExogRegression, sarimaxArtifact},
		{forecasting.FamilyAdditiveRegression, prophetArtifact},
		{forecasting.FamilyGradientBoostedTree, lgbmArtifact},
	}
	for _, tc := range cases {
		path := writeArtifact(t, dir, string(tc.family)+".json", tc.body)
		model, err := loader.Load(ctx, forecasting.Binding{ID: 1, Path: path, Family: tc.family})
		if err != nil {
			t.Fatalf("%s: %v", tc.family, err)
		}
		if model.Family() != tc.family {
			t.Fatalf("expected %s, got %s", tc.family, model.Family())
		}
	}

	if _, err := loader.Load(ctx, forecasting.Binding{Path: "model.pkl", Family: forecasting.FamilyExogRegression}); !errors.Is(err, forecasting.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad for extension, got %v", err)
	}
	if _, err := loader.Load(ctx, forecasting.Binding{Path: "missing.json", Family: forecasting.FamilyExogRegression}); !errors.Is(err, forecasting.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad for missing file, got %v", err)
	}
	if _, err := loader.Load(ctx, forecasting.Binding{Path: "x.json", Family: "xgboost"}); !errors.Is(err, forecasting.ErrUnsupportedModelType) {
		t.Fatalf("expected ErrUnsupportedModelType, got %v", err)
	}
}

type countingLoader struct {
	calls atomic.Int32
	delay time.Duration
}

func (l *countingLoader) Load(ctx context.Context, binding forecasting.Binding) (Model, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	return &TreeEnsemble{}, nil
}

func TestCache_LoadsOncePerBinding(t *testing.T) {
	loader := &countingLoader{delay: 20 * time.Millisecond}
	cache, err := NewCache(loader, 0)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	binding := forecasting.Binding{ID: 7}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), binding); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}

	cache.Invalidate(binding.ID)
	if _, err := cache.Get(context.Background(), binding); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected reload after invalidate, got %d", got)
	}
}

type contextLoader struct{}

func (contextLoader) Load(ctx context.Context, binding forecasting.Binding) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &TreeEnsemble{}, nil
}

func TestCache_LoadIgnoresCallerCancellation(t *testing.T) {
	cache, err := NewCache(contextLoader{}, 0)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.Get(ctx, forecasting.Binding{ID: 3}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected cached model, got %d", cache.Len())
	}
}

func TestCache_Evicts(t *testing.T) {
	loader := &countingLoader{}
	cache, err := NewCache(loader, 1)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	ctx := context.Background()
	_, _ = cache.Get(ctx, forecasting.Binding{ID: 1})
	_, _ = cache.Get(ctx, forecasting.Binding{ID: 2})
	if cache.Len() != 1 {
		t.Fatalf("expected 1 cached model, got %d", cache.Len())
	}
	_, _ = cache.Get(ctx, forecasting.Binding{ID: 1})
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("expected 3 loads, got %d", got)
	}
}
