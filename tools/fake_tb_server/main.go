// Command fake_tb_server serves synthetic occupancy telemetry in the ThingsBoard
// timeseries format for local runs of the batch stepper.
package main

import (
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

type tsValue struct {
	TS    int64  `json:"ts"`
	Value string `json:"value"`
}

type fakeTBServer struct {
	start    time.Time
	loc      *time.Location
	latency  time.Duration
	failRate float64
	token    string

	mu         sync.Mutex
	byDevice   map[string]int64
	totalCalls int64
}

func main() {
	logger := logrus.New()
	addr := getenvDefault("FAKE_TB_ADDR", ":18080")
	loc, err := time.LoadLocation(getenvDefault("FAKE_TB_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		logger.WithError(err).Fatal("timezone")
	}
	srv := newFakeTBServer(loc)
	srv.latency = time.Duration(getenvIntDefault("FAKE_TB_LATENCY_MS", 0)) * time.Millisecond
	srv.failRate = getenvFloatDefault("FAKE_TB_FAIL_RATE", 0)
	srv.token = os.Getenv("FAKE_TB_TOKEN")

	logger.WithField("addr", addr).Info("fake TB telemetry server listening")
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		logger.WithError(err).Fatal("listen")
	}
}

func newFakeTBServer(loc *time.Location) *fakeTBServer {
	return &fakeTBServer{
		start:    time.Now().UTC(),
		loc:      loc,
		byDevice: make(map[string]int64),
	}
}

func (s *fakeTBServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/api/plugins/telemetry/{entityType}/{entityID}/values/timeseries", s.handleTimeseries)
	return r
}

func (s *fakeTBServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeTBServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_device":  s.byDevice,
	})
}

// handleTimeseries returns hourly samples of every requested key inside [startTs, endTs].
func (s *fakeTBServer) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("X-Authorization") != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	deviceID := chi.URLParam(r, "entityID")
	s.recordCall(deviceID)
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	startTs, err1 := strconv.ParseInt(query.Get("startTs"), 10, 64)
	endTs, err2 := strconv.ParseInt(query.Get("endTs"), 10, 64)
	if err1 != nil || err2 != nil || endTs < startTs {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	start := time.UnixMilli(startTs).UTC()
	first := start.Truncate(time.Hour)
	if first.Before(start) {
		first = first.Add(time.Hour)
	}
	end := time.UnixMilli(endTs).UTC()
	descending := strings.EqualFold(query.Get("orderBy"), "DESC")

	var samples []tsValue
	for at := first; !at.After(end); at = at.Add(time.Hour) {
		samples = append(samples, tsValue{TS: at.UnixMilli(), Value: strconv.FormatFloat(s.occupancy(at), 'f', 1, 64)})
	}
	if descending {
		for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
			samples[i], samples[j] = samples[j], samples[i]
		}
	}
	if len(samples) > limit {
		samples = samples[:limit]
	}

	out := map[string][]tsValue{}
	for _, key := range strings.Split(query.Get("keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			out[key] = samples
		}
	}
	writeJSON(w, out)
}

// occupancy is a weekday lunch peak over a low base; weekends stay low.
func (s *fakeTBServer) occupancy(at time.Time) float64 {
	local := at.In(s.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return 10
	}
	hour := float64(local.Hour())
	return math.Round((20+60*math.Exp(-math.Pow(hour-12.5, 2)/2))*10) / 10
}

func (s *fakeTBServer) recordCall(deviceID string) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID != "" {
		s.byDevice[deviceID]++
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
