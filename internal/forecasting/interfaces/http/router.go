// Package forecasthttp exposes the forecasting API over HTTP.
package forecasthttp

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"occupancy-forecast/internal/auth"
	"occupancy-forecast/internal/forecasting/application"
	forecasting "occupancy-forecast/internal/forecasting/domain"
)

// Dependencies are the collaborators the handlers need.
type Dependencies struct {
	Series       forecasting.SeriesRepository
	Bindings     forecasting.BindingRepository
	Points       forecasting.PointRepository
	Orchestrator *application.Orchestrator
	Reader       *application.Reader
	Single       *application.SinglePredictor
	Batch        *application.BatchStepper
	Normalizer   *forecasting.Normalizer
	// Auth is optional; nil or a middleware without a secret disables auth.
	Auth   *auth.Middleware
	Logger logrus.FieldLogger
}

// Handler serves the forecasting endpoints.
type Handler struct {
	series       forecasting.SeriesRepository
	bindings     forecasting.BindingRepository
	points       forecasting.PointRepository
	orchestrator *application.Orchestrator
	reader       *application.Reader
	single       *application.SinglePredictor
	batch        *application.BatchStepper
	normalizer   *forecasting.Normalizer
	validate     *validator.Validate
	logger       logrus.FieldLogger
}

// NewHandler constructs a Handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Series == nil || deps.Bindings == nil || deps.Points == nil {
		return nil, errors.New("forecast http: nil repository")
	}
	if deps.Orchestrator == nil || deps.Reader == nil || deps.Single == nil || deps.Batch == nil {
		return nil, errors.New("forecast http: nil application service")
	}
	if deps.Normalizer == nil {
		return nil, errors.New("forecast http: nil normalizer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		series:       deps.Series,
		bindings:     deps.Bindings,
		points:       deps.Points,
		orchestrator: deps.Orchestrator,
		reader:       deps.Reader,
		single:       deps.Single,
		batch:        deps.Batch,
		normalizer:   deps.Normalizer,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
	}, nil
}

// NewRouter builds the HTTP handler tree. Every route is served both at the root
// and under /api, with or without a trailing slash.
func NewRouter(deps Dependencies) (http.Handler, error) {
	h, err := NewHandler(deps)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	if deps.Auth != nil {
		r.Use(deps.Auth.Wrap)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(h.routes)
	r.Route("/api", h.routes)
	return r, nil
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/forecasts", h.listForecasts)
	r.Get("/models", h.listModels)
	r.Post("/predict", h.generate)
	r.Route("/forecasts/{id}", func(r chi.Router) {
		r.Get("/predictions", h.predictions)
		r.Get("/predictions/export.{format}", h.export)
		r.Get("/predict", h.predictOne)
		r.Post("/predict_batch", h.predictBatch)
	})
}
