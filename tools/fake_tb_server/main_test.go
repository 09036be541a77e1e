package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"occupancy-forecast/internal/forecasting/adapters/thingsboard"
)

func TestFakeServer_ServesThingsBoardClient(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	srv := newFakeTBServer(loc)
	server := httptest.NewServer(srv.routes())
	defer server.Close()

	client, err := thingsboard.NewClient(thingsboard.Config{BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	// Thursday 12:00 local, the lunch peak.
	at := time.Date(2025, 11, 13, 15, 0, 0, 0, time.UTC)
	value, err := client.ValueAt(context.Background(), "device-1", at)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if want := srv.occupancy(at); value != want || value < 70 {
		t.Fatalf("expected lunch peak %v, got %v", want, value)
	}

	saturday := time.Date(2025, 11, 15, 15, 0, 0, 0, time.UTC)
	if value, err := client.ValueAt(context.Background(), "device-1", saturday); err != nil || value != 10 {
		t.Fatalf("expected weekend 10, got %v (%v)", value, err)
	}
	if srv.byDevice["device-1"] != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", srv.byDevice["device-1"])
	}
}
