package forecasthttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"occupancy-forecast/internal/forecasting/application"
	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
	"occupancy-forecast/internal/forecasting/infrastructure/memory"
	"occupancy-forecast/internal/forecasting/models"
)

const dailyArtifact = `{
  "exog_names": ["is_weekend", "recesso"],
  "intercept": 50,
  "coefficients": {"is_weekend": -20, "recesso": -10},
  "ar": [0.5],
  "seasonal_ar": [],
  "seasonal_period": 7,
  "last_residuals": [1, 4]
}`

const hourlyArtifact = `{
  "exog_names": ["ocupacao_hora_anterior"],
  "intercept": 0.5,
  "coefficients": {"ocupacao_hora_anterior": 1}
}`

type testServer struct {
	handler     http.Handler
	store       *memory.Store
	dailySeries int64
	dailyModel  int64
	lagSeries   int64
	lagModel    int64
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	for name, body := range map[string]string{"daily.json": dailyArtifact, "hourly.json": hourlyArtifact} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}

	store := memory.NewStore()
	dailySeries, err := store.Series().Upsert(ctx, forecasting.Series{Name: "ocupacao", Description: "Ocupação diária"})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	dailyModel, err := store.Bindings().Upsert(ctx, forecasting.Binding{
		SeriesID:    dailySeries,
		Name:        "sarimax-diario",
		Path:        "daily.json",
		Family:      forecasting.FamilyExogRegression,
		Granularity: forecasting.GranularityDaily,
		ExogColumns: []string{"is_weekend", "recesso"},
	})
	if err != nil {
		t.Fatalf("binding: %v", err)
	}
	lagSeries, err := store.Series().Upsert(ctx, forecasting.Series{Name: "ocupacao-horaria", ExternalID: "device-1"})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	lagModel, err := store.Bindings().Upsert(ctx, forecasting.Binding{
		SeriesID:    lagSeries,
		Name:        "sarimax-horario",
		Path:        "hourly.json",
		Family:      forecasting.FamilyExogRegression,
		Granularity: forecasting.GranularityHourly,
		ExogColumns: []string{forecasting.LagPreviousHour},
	})
	if err != nil {
		t.Fatalf("binding: %v", err)
	}

	normalizer, err := forecasting.NewDefaultNormalizer()
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	cache, err := models.NewCache(models.NewLoader(dir), 0)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	dispatcher := application.NewDispatcher(features.NewBrazilHolidayCalendar(), nil)
	orchestrator, err := application.NewOrchestrator(store.Bindings(), store.Points(), cache, dispatcher, normalizer, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	reader, err := application.NewReader(store.Series(), store.Bindings(), store.Points(), orchestrator, normalizer, nil)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	single, err := application.NewSinglePredictor(store.Series(), store.Bindings(), store.Points(), cache, dispatcher, normalizer, nil)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	batch, err := application.NewBatchStepper(store.Series(), store.Bindings(), store.Points(), cache, dispatcher, normalizer, nil, nil)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	handler, err := NewRouter(Dependencies{
		Series:       store.Series(),
		Bindings:     store.Bindings(),
		Points:       store.Points(),
		Orchestrator: orchestrator,
		Reader:       reader,
		Single:       single,
		Batch:        batch,
		Normalizer:   normalizer,
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return testServer{
		handler:     handler,
		store:       store,
		dailySeries: dailySeries,
		dailyModel:  dailyModel,
		lagSeries:   lagSeries,
		lagModel:    lagModel,
	}
}

func (s testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", resp.Body.String(), err)
	}
}

func TestPredict_EndToEndDaily(t *testing.T) {
	srv := newTestServer(t)
	body := `{"model_id": ` + itoa(srv.dailyModel) + `, "data_inicio": "2025-11-10T00:00:00-03:00", "data_fim": "2025-11-11T00:00:00-03:00"}`
	resp := srv.do(t, http.MethodPost, "/api/predict/", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created generateResponse
	decodeBody(t, resp, &created)
	if created.ForecastID != srv.dailySeries || created.Count != 2 {
		t.Fatalf("unexpected response %+v", created)
	}

	points, err := srv.store.Points().List(context.Background(), forecasting.PointQuery{BindingID: srv.dailyModel})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 stored points, got %d", len(points))
	}
	loc, _ := time.LoadLocation(forecasting.DefaultTimezone)
	for i, p := range points {
		local := p.At.Add(-forecasting.StorageOffset).In(time.UTC)
		if local.Hour() != 0 || local.Minute() != 0 {
			t.Fatalf("point %d not midnight aligned: %s", i, p.At)
		}
		if display := p.At.In(loc); display.Hour() != 0 {
			t.Fatalf("point %d displays at %s", i, display)
		}
	}
	if gap := points[1].At.Sub(points[0].At); gap != 24*time.Hour {
		t.Fatalf("expected 1 day apart, got %s", gap)
	}
	if points[0].Value != 52 || points[1].Value != 51 {
		t.Fatalf("unexpected values %v %v", points[0].Value, points[1].Value)
	}
}

func TestPredict_Errors(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing fields", `{"model_id": 1}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"bad date", `{"model_id": ` + itoa(srv.dailyModel) + `, "data_inicio": "ontem", "data_fim": "2025-11-11"}`, http.StatusBadRequest},
		{"reversed", `{"model_id": ` + itoa(srv.dailyModel) + `, "data_inicio": "2025-12-01T00:00:00Z", "data_fim": "2025-11-01T00:00:00Z"}`, http.StatusBadRequest},
		{"unknown model", `{"model_id": 999, "data_inicio": "2025-11-10", "data_fim": "2025-11-11"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := srv.do(t, http.MethodPost, "/predict", tc.body)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, resp.Code, resp.Body.String())
		}
		var body errorResponse
		decodeBody(t, resp, &body)
		if body.Erro == "" {
			t.Fatalf("%s: expected erro message", tc.name)
		}
	}
}

func TestPredict_MisconfiguredBindingIsServerError(t *testing.T) {
	srv := newTestServer(t)
	bare, err := srv.store.Bindings().Upsert(context.Background(), forecasting.Binding{
		SeriesID:    srv.dailySeries,
		Name:        "sarimax-sem-exog",
		Path:        "daily.json",
		Family:      forecasting.FamilyExogRegression,
		Granularity: forecasting.GranularityDaily,
	})
	if err != nil {
		t.Fatalf("binding: %v", err)
	}
	body := `{"model_id": ` + itoa(bare) + `, "data_inicio": "2025-11-10", "data_fim": "2025-11-11"}`
	resp := srv.do(t, http.MethodPost, "/predict/", body)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload errorResponse
	decodeBody(t, resp, &payload)
	if !strings.Contains(payload.Erro, "exog_columns") {
		t.Fatalf("unexpected erro %q", payload.Erro)
	}
}

func TestPredictions_LazyFill(t *testing.T) {
	srv := newTestServer(t)
	target := "/forecasts/" + itoa(srv.dailySeries) + "/predictions/?model_id=" + itoa(srv.dailyModel) +
		"&start_date=2025-11-10T00:00:00-03:00&end_date=2025-11-16T00:00:00-03:00"
	resp := srv.do(t, http.MethodGet, target, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get(ReadStatusHeader); got != string(application.ReadRegenerated) {
		t.Fatalf("expected regenerated read, got %q", got)
	}
	var points []pointResponse
	decodeBody(t, resp, &points)
	if len(points) != 7 {
		t.Fatalf("expected 7 points, got %d", len(points))
	}
	if points[0].PredictionDatetime != "2025-11-10T00:00:00-03:00" {
		t.Fatalf("unexpected first datetime %s", points[0].PredictionDatetime)
	}

	resp = srv.do(t, http.MethodGet, target, "")
	if got := resp.Header().Get(ReadStatusHeader); got != string(application.ReadFresh) {
		t.Fatalf("expected fresh second read, got %q", got)
	}

	if resp := srv.do(t, http.MethodGet, "/forecasts/999/predictions", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodGet, "/forecasts/abc/predictions", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPredictOne(t *testing.T) {
	srv := newTestServer(t)
	base := "/api/forecasts/" + itoa(srv.lagSeries) + "/predict/?period=2025-11-13T15:00:00Z&granularity=H"

	resp := srv.do(t, http.MethodGet, base+"&ocupacao_hora_anterior=10", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var got singleResponse
	decodeBody(t, resp, &got)
	if got.Value != 10.5 || got.ModelID != srv.lagModel || got.PredictionDatetime != "2025-11-13T12:00:00-03:00" {
		t.Fatalf("unexpected response %+v", got)
	}
	if n := srv.store.Points().Count(); n != 1 {
		t.Fatalf("expected 1 stored point, got %d", n)
	}

	if resp := srv.do(t, http.MethodGet, base, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing lag: expected 400, got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodGet, base+"&ocupacao_hora_anterior=dez", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad number: expected 400, got %d", resp.Code)
	}
	daily := "/forecasts/" + itoa(srv.lagSeries) + "/predict?period=2025-11-13&granularity=D"
	if resp := srv.do(t, http.MethodGet, daily, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("no daily binding: expected 404, got %d", resp.Code)
	}
}

func TestPredictBatch(t *testing.T) {
	srv := newTestServer(t)
	target := "/forecasts/" + itoa(srv.lagSeries) + "/predict_batch/"
	body := `{"start_date": "2025-11-13T12:00:00-03:00", "end_date": "2025-11-13T14:00:00-03:00", "granularity": "H",
		"initial_features": {"ocupacao_hora_anterior": 10}}`
	resp := srv.do(t, http.MethodPost, target, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var got batchResponse
	decodeBody(t, resp, &got)
	if got.Count != 3 {
		t.Fatalf("expected 3 points, got %+v", got)
	}
	points, _ := srv.store.Points().List(context.Background(), forecasting.PointQuery{BindingID: srv.lagModel})
	want := []float64{10.5, 11, 11.5}
	for i, p := range points {
		if p.Value != want[i] {
			t.Fatalf("point %d: expected %v, got %v", i, want[i], p.Value)
		}
	}

	missing := `{"start_date": "2025-11-13T12:00:00-03:00", "end_date": "2025-11-13T14:00:00-03:00", "granularity": "H"}`
	if resp := srv.do(t, http.MethodPost, target, missing); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing initial lag: expected 400, got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodPost, target, `{"granularity": "H"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing dates: expected 400, got %d", resp.Code)
	}
}

func TestListEndpoints(t *testing.T) {
	srv := newTestServer(t)
	resp := srv.do(t, http.MethodGet, "/forecasts/", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var series []seriesResponse
	decodeBody(t, resp, &series)
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}

	resp = srv.do(t, http.MethodGet, "/api/models", "")
	var bindings []modelResponse
	decodeBody(t, resp, &bindings)
	if len(bindings) != 2 {
		t.Fatalf("expected 2 models, got %d", len(bindings))
	}
	for _, b := range bindings {
		if b.ID == srv.dailyModel && (b.ForecastName != "ocupacao" || len(b.ExogColumns) != 2 || b.ModelType != "sarimax" || b.Granularity != "D") {
			t.Fatalf("unexpected model %+v", b)
		}
	}

	if resp := srv.do(t, http.MethodGet, "/healthz", ""); resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", resp.Code, resp.Body.String())
	}
}

func TestExport(t *testing.T) {
	srv := newTestServer(t)
	gen := `{"model_id": ` + itoa(srv.dailyModel) + `, "data_inicio": "2025-11-10T00:00:00-03:00", "data_fim": "2025-11-11T00:00:00-03:00"}`
	if resp := srv.do(t, http.MethodPost, "/predict", gen); resp.Code != http.StatusCreated {
		t.Fatalf("generate: %d %s", resp.Code, resp.Body.String())
	}
	base := "/forecasts/" + itoa(srv.dailySeries) + "/predictions/export."

	resp := srv.do(t, http.MethodGet, base+"csv", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("csv: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
	if len(lines) != 3 || lines[0] != "prediction_datetime,model,value" {
		t.Fatalf("unexpected csv %q", resp.Body.String())
	}
	if !strings.HasPrefix(lines[1], "2025-11-10T00:00:00-03:00,") || !strings.HasSuffix(lines[1], ",52.00") {
		t.Fatalf("unexpected csv row %q", lines[1])
	}

	resp = srv.do(t, http.MethodGet, base+"xlsx", "")
	if resp.Code != http.StatusOK || !strings.HasPrefix(resp.Body.String(), "PK") {
		t.Fatalf("xlsx: unexpected response %d", resp.Code)
	}
	resp = srv.do(t, http.MethodGet, base+"pdf", "")
	if resp.Code != http.StatusOK || !strings.HasPrefix(resp.Body.String(), "%PDF") {
		t.Fatalf("pdf: unexpected response %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodGet, base+"doc", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("doc: expected 400, got %d", resp.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		forecasting.ErrNotFound:              http.StatusNotFound,
		forecasting.ErrInvalidDateRange:      http.StatusBadRequest,
		forecasting.ErrMissingInitialFeature: http.StatusBadRequest,
		forecasting.ErrConfiguration:         http.StatusInternalServerError,
		forecasting.ErrModelLoad:             http.StatusInternalServerError,
		forecasting.ErrUnsupportedModelType:  http.StatusInternalServerError,
		forecasting.ErrExternalFetch:         http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
