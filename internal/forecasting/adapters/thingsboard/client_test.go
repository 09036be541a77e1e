package thingsboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

func TestClient_ValueAt(t *testing.T) {
	at := time.Date(2025, 11, 12, 15, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/plugins/telemetry/DEVICE/dev-1/values/timeseries" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		q := r.URL.Query()
		if q.Get("keys") != "ocupacao" || q.Get("startTs") != "1762959600000" || q.Get("limit") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"ocupacao":[{"ts":1762959600000,"value":"42.5"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL + "/", Token: "tok"}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	value, err := client.ValueAt(context.Background(), "dev-1", at)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value != 42.5 {
		t.Fatalf("expected 42.5, got %f", value)
	}
}

func TestClient_Errors(t *testing.T) {
	status := http.StatusOK
	body := `{"ocupacao":[]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx := context.Background()
	if _, err := client.ValueAt(ctx, "dev-1", time.Now()); !errors.Is(err, forecasting.ErrExternalFetch) {
		t.Fatalf("expected ErrExternalFetch for empty series, got %v", err)
	}

	status = http.StatusBadGateway
	for i := 0; i < 2; i++ {
		if _, err := client.ValueAt(ctx, "dev-1", time.Now()); !errors.Is(err, forecasting.ErrExternalFetch) {
			t.Fatalf("expected ErrExternalFetch, got %v", err)
		}
	}
	status = http.StatusOK
	body = `{"ocupacao":[{"ts":1,"value":3}]}`
	if _, err := client.ValueAt(ctx, "dev-1", time.Now()); err == nil {
		t.Fatalf("expected open breaker to reject the call")
	}
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestParseValue(t *testing.T) {
	for raw, want := range map[string]float64{`"7"`: 7, `8.25`: 8.25, `" 1.5 "`: 1.5} {
		got, err := parseValue([]byte(raw))
		if err != nil || got != want {
			t.Fatalf("parse %s: got %f, %v", raw, got, err)
		}
	}
	if _, err := parseValue([]byte(`"n/a"`)); err == nil {
		t.Fatalf("expected parse error")
	}
}
