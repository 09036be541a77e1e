package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/models"
)

// SingleRequest asks for one on-demand prediction.
type SingleRequest struct {
	SeriesID    int64
	Period      string
	Granularity string
	// Lags holds caller-supplied lag covariates by name.
	Lags map[string]float64
}

// SingleResult is the stored outcome of a single-point prediction.
type SingleResult struct {
	Binding forecasting.Binding
	Point   forecasting.Point
}

// SinglePredictor runs contract resolution and dispatch for one timestamp and
// overwrites the stored point for it.
type SinglePredictor struct {
	series     forecasting.SeriesRepository
	bindings   forecasting.BindingRepository
	points     forecasting.PointRepository
	models     models.ArtifactLoader
	dispatcher *Dispatcher
	normalizer *forecasting.Normalizer
	logger     logrus.FieldLogger
}

// NewSinglePredictor constructs the single-point predictor.
func NewSinglePredictor(
	series forecasting.SeriesRepository,
	bindings forecasting.BindingRepository,
	points forecasting.PointRepository,
	loader models.ArtifactLoader,
	dispatcher *Dispatcher,
	normalizer *forecasting.Normalizer,
	logger logrus.FieldLogger,
) (*SinglePredictor, error) {
	if series == nil || bindings == nil || points == nil {
		return nil, errors.New("single predictor: nil repository")
	}
	if loader == nil {
		return nil, errors.New("single predictor: nil model loader")
	}
	if normalizer == nil {
		return nil, errors.New("single predictor: nil normalizer")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil, logger)
	}
	return &SinglePredictor{
		series:     series,
		bindings:   bindings,
		points:     points,
		models:     loader,
		dispatcher: dispatcher,
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// Predict resolves the series binding for the granularity and predicts one step.
// Lag values are required only when the binding declares them.
func (p *SinglePredictor) Predict(ctx context.Context, req SingleRequest) (SingleResult, error) {
	if req.Period == "" {
		return SingleResult{}, fmt.Errorf("%w: period is required", forecasting.ErrInvalidInput)
	}
	if req.Granularity == "" {
		return SingleResult{}, fmt.Errorf("%w: granularity is required", forecasting.ErrInvalidInput)
	}
	g, err := forecasting.ParseGranularity(req.Granularity)
	if err != nil {
		return SingleResult{}, err
	}
	if _, err := p.series.Get(ctx, req.SeriesID); err != nil {
		return SingleResult{}, err
	}
	binding, err := p.bindings.FindBySeriesGranularity(ctx, req.SeriesID, g)
	if err != nil {
		return SingleResult{}, err
	}
	at, err := p.normalizer.NormalizeInstant(req.Period, g)
	if err != nil {
		return SingleResult{}, err
	}

	supplied := make(map[string][]float64)
	for _, lag := range []string{forecasting.LagPreviousHour, forecasting.LagPreviousDay} {
		if !binding.Declares(lag) {
			continue
		}
		value, ok := req.Lags[lag]
		if !ok {
			return SingleResult{}, fmt.Errorf("%w: %s is required by model %d", forecasting.ErrInvalidInput, lag, binding.ID)
		}
		supplied[lag] = []float64{value}
	}

	model, err := p.models.Load(ctx, binding)
	if err != nil {
		return SingleResult{}, err
	}
	predictions, err := p.dispatcher.Run(ctx, model, binding, RunRequest{Horizon: []time.Time{at}, Supplied: supplied})
	if err != nil {
		return SingleResult{}, err
	}
	point := forecasting.Point{
		BindingID: binding.ID,
		At:        p.normalizer.ToStorage(predictions[0].At),
		Value:     predictions[0].Value,
	}
	if err := p.points.Upsert(ctx, point); err != nil {
		return SingleResult{}, err
	}
	p.logger.WithFields(logrus.Fields{
		"binding_id": binding.ID,
		"at":         point.At,
	}).Info("single prediction stored")
	return SingleResult{Binding: binding, Point: point}, nil
}
