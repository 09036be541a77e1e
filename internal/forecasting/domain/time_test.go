package forecasting

import (
	"errors"
	"testing"
	"time"
)

func mustNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewDefaultNormalizer()
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	return n
}

func TestNormalize_DailySnapsToMidnight(t *testing.T) {
	n := mustNormalizer(t)
	r, err := n.Normalize("2025-10-28T15:00:00Z", "2025-10-30T23:30:00Z", GranularityDaily)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	wantStart := time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC)
	if !r.Start.Equal(wantStart) || !r.End.Equal(wantEnd) {
		t.Fatalf("unexpected range %s", r)
	}
	if got := GranularityDaily.ExpectedCount(r.Start, r.End); got != 3 {
		t.Fatalf("expected 3 days, got %d", got)
	}
}

func TestNormalize_HourlyConvertsToLocal(t *testing.T) {
	n := mustNormalizer(t)
	r, err := n.Normalize("2025-11-13T15:20:00Z", "2025-11-13T18:00:00Z", GranularityHourly)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if r.Start.Hour() != 12 || r.Start.Minute() != 0 {
		t.Fatalf("expected 12:00 local, got %s", r.Start)
	}
	if got := GranularityHourly.ExpectedCount(r.Start, r.End); got != 4 {
		t.Fatalf("expected 4 hours, got %d", got)
	}
}

func TestNormalize_DateOnlyIsLocalMidnight(t *testing.T) {
	n := mustNormalizer(t)
	r, err := n.Normalize("2025-10-28", "2025-10-29", GranularityDaily)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if r.Start.Day() != 28 || r.End.Day() != 29 {
		t.Fatalf("unexpected range %s", r)
	}
	stored := n.ToStorage(r.Start)
	if stored.Hour() != 3 {
		t.Fatalf("expected stored instant at 03:00Z, got %s", stored)
	}
	if back := n.FromStorage(stored); !back.Equal(r.Start) {
		t.Fatalf("round trip mismatch: %s", back)
	}
	if shown := n.Display(stored); shown.Hour() != 0 {
		t.Fatalf("expected midnight local, got %s", shown)
	}
}

func TestNormalize_Errors(t *testing.T) {
	n := mustNormalizer(t)
	if _, err := n.Normalize("2025-10-30", "2025-10-28", GranularityDaily); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := n.Normalize("yesterday", "2025-10-28", GranularityDaily); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := n.Normalize("2025-10-28", "2025-10-29", Granularity("W")); !errors.Is(err, ErrUnsupportedGranularity) {
		t.Fatalf("expected ErrUnsupportedGranularity, got %v", err)
	}
}

func TestGranularity_ParseAndHorizon(t *testing.T) {
	for _, raw := range []string{"D", "daily", " d "} {
		g, err := ParseGranularity(raw)
		if err != nil || g != GranularityDaily {
			t.Fatalf("parse %q: %v %v", raw, g, err)
		}
	}
	if _, err := ParseGranularity("weekly"); !errors.Is(err, ErrUnsupportedGranularity) {
		t.Fatalf("expected ErrUnsupportedGranularity, got %v", err)
	}
	start := time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC)
	steps := GranularityHourly.Horizon(start, start.Add(3*time.Hour))
	if len(steps) != 4 || !steps[3].Equal(start.Add(3*time.Hour)) {
		t.Fatalf("unexpected horizon %v", steps)
	}
}

func TestParseFamily(t *testing.T) {
	if ParseFamily("LightGBM") != FamilyGradientBoostedTree {
		t.Fatalf("expected lgbm alias")
	}
	if f := ParseFamily("xgboost"); f.IsKnown() || f != "xgboost" {
		t.Fatalf("unexpected family %q", f)
	}
}
