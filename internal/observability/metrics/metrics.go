package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	metricPrefix = "forecast_"

	resultSuccess = "success"
	resultError   = "error"

	lazyFillFresh       = "fresh"
	lazyFillRegenerated = "regenerated"
	lazyFillStale       = "stale"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	generateTotal   *prometheus.CounterVec
	generateLatency *prometheus.HistogramVec

	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec

	lazyFillTotal *prometheus.CounterVec

	modelCacheTotal  *prometheus.CounterVec
	modelLoadLatency *prometheus.HistogramVec

	telemetryFetchTotal   *prometheus.CounterVec
	telemetryFetchLatency *prometheus.HistogramVec

	exportTotal *prometheus.CounterVec
)

// Init registers forecast metrics and DB-backed gauges.
func Init(db *sql.DB, logger logrus.FieldLogger) {
	registerOnce.Do(func() {
		generateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "generate_total",
				Help: "Total forecast generations by granularity and result",
			},
			[]string{"granularity", "result"},
		)
		generateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "generate_latency_seconds",
				Help:    "Forecast generation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"granularity", "result"},
		)

		dispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dispatch_total",
				Help: "Total model dispatches by family and result",
			},
			[]string{"family", "result"},
		)
		dispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dispatch_latency_seconds",
				Help:    "Model dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family"},
		)

		lazyFillTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lazy_fill_total",
				Help: "Prediction reads by lazy-fill outcome",
			},
			[]string{"outcome"},
		)

		modelCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "model_cache_total",
				Help: "Model cache lookups by result",
			},
			[]string{"result"},
		)
		modelLoadLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "model_load_latency_seconds",
				Help:    "Model artifact load latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family", "result"},
		)

		telemetryFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_fetch_total",
				Help: "Total telemetry lag fetches by result",
			},
			[]string{"result"},
		)
		telemetryFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "telemetry_fetch_latency_seconds",
				Help:    "Telemetry lag fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total prediction exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			generateTotal,
			generateLatency,
			dispatchTotal,
			dispatchLatency,
			lazyFillTotal,
			modelCacheTotal,
			modelLoadLatency,
			telemetryFetchTotal,
			telemetryFetchLatency,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveGenerate records one orchestrator run.
func ObserveGenerate(granularity, result string, duration time.Duration) {
	if granularity == "" {
		granularity = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if generateTotal != nil {
		generateTotal.WithLabelValues(granularity, result).Inc()
	}
	if generateLatency != nil {
		generateLatency.WithLabelValues(granularity, result).Observe(duration.Seconds())
	}
}

// ObserveDispatch records one model invocation.
func ObserveDispatch(family, result string, duration time.Duration) {
	if family == "" {
		family = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if dispatchTotal != nil {
		dispatchTotal.WithLabelValues(family, result).Inc()
	}
	if dispatchLatency != nil {
		dispatchLatency.WithLabelValues(family).Observe(duration.Seconds())
	}
}

// IncLazyFill counts a prediction read by outcome.
func IncLazyFill(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if lazyFillTotal != nil {
		lazyFillTotal.WithLabelValues(outcome).Inc()
	}
}

// IncModelCache counts a cache hit or miss.
func IncModelCache(hit bool) {
	result := cacheMiss
	if hit {
		result = cacheHit
	}
	if modelCacheTotal != nil {
		modelCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveModelLoad records an artifact load.
func ObserveModelLoad(family, result string, duration time.Duration) {
	if family == "" {
		family = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if modelLoadLatency != nil {
		modelLoadLatency.WithLabelValues(family, result).Observe(duration.Seconds())
	}
}

// ObserveTelemetryFetch records a lag lookup against the telemetry system.
func ObserveTelemetryFetch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if telemetryFetchTotal != nil {
		telemetryFetchTotal.WithLabelValues(result).Inc()
	}
	if telemetryFetchLatency != nil {
		telemetryFetchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncExport counts an export by format and result.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	LazyFillFresh       = lazyFillFresh
	LazyFillRegenerated = lazyFillRegenerated
	LazyFillStale       = lazyFillStale
)
