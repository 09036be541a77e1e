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

// LagReader fetches an observed series value from the telemetry system.
// at is the stored instant of the wanted observation.
type LagReader interface {
	ValueAt(ctx context.Context, externalID string, at time.Time) (float64, error)
}

// BatchRequest asks for a stepped prediction over a range.
type BatchRequest struct {
	SeriesID    int64
	Start       string
	End         string
	Granularity string
	// InitialPrevHour seeds the previous-hour lag; required for hourly batches.
	InitialPrevHour *float64
}

// BatchResult reports what a batch stored.
type BatchResult struct {
	Binding forecasting.Binding
	Points  []forecasting.Point
}

// BatchStepper predicts a range one step at a time, feeding each hourly step's
// prediction forward as the next step's previous-hour lag. Steps run sequentially.
type BatchStepper struct {
	series     forecasting.SeriesRepository
	bindings   forecasting.BindingRepository
	points     forecasting.PointRepository
	models     models.ArtifactLoader
	dispatcher *Dispatcher
	normalizer *forecasting.Normalizer
	lags       LagReader
	logger     logrus.FieldLogger
}

// NewBatchStepper constructs the stepper. lags may be nil when no binding declares
// the previous-day lag.
func NewBatchStepper(
	series forecasting.SeriesRepository,
	bindings forecasting.BindingRepository,
	points forecasting.PointRepository,
	loader models.ArtifactLoader,
	dispatcher *Dispatcher,
	normalizer *forecasting.Normalizer,
	lags LagReader,
	logger logrus.FieldLogger,
) (*BatchStepper, error) {
	if series == nil || bindings == nil || points == nil {
		return nil, errors.New("batch stepper: nil repository")
	}
	if loader == nil {
		return nil, errors.New("batch stepper: nil model loader")
	}
	if normalizer == nil {
		return nil, errors.New("batch stepper: nil normalizer")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil, logger)
	}
	return &BatchStepper{
		series:     series,
		bindings:   bindings,
		points:     points,
		models:     loader,
		dispatcher: dispatcher,
		normalizer: normalizer,
		lags:       lags,
		logger:     logger,
	}, nil
}

// Run predicts every step of the range and stores all points in one write at the end.
// Any step failure aborts the batch before anything is written.
func (s *BatchStepper) Run(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if req.Start == "" || req.End == "" || req.Granularity == "" {
		return BatchResult{}, fmt.Errorf("%w: start_date, end_date and granularity are required", forecasting.ErrInvalidInput)
	}
	g, err := forecasting.ParseGranularity(req.Granularity)
	if err != nil {
		return BatchResult{}, err
	}
	if g == forecasting.GranularityHourly && req.InitialPrevHour == nil {
		return BatchResult{}, fmt.Errorf("%w: initial_features.%s is required for hourly batches", forecasting.ErrMissingInitialFeature, forecasting.LagPreviousHour)
	}
	series, err := s.series.Get(ctx, req.SeriesID)
	if err != nil {
		return BatchResult{}, err
	}
	binding, err := s.bindings.FindBySeriesGranularity(ctx, req.SeriesID, g)
	if err != nil {
		return BatchResult{}, err
	}
	window, err := s.normalizer.Normalize(req.Start, req.End, g)
	if err != nil {
		return BatchResult{}, err
	}
	model, err := s.models.Load(ctx, binding)
	if err != nil {
		return BatchResult{}, err
	}

	horizon := g.Horizon(window.Start, window.End)
	var predictions []Prediction
	if g == forecasting.GranularityHourly {
		predictions, err = s.stepHourly(ctx, model, series, binding, horizon, *req.InitialPrevHour)
	} else {
		predictions, err = s.stepDaily(ctx, model, binding, horizon)
	}
	if err != nil {
		return BatchResult{}, err
	}

	points := make([]forecasting.Point, len(predictions))
	for i, p := range predictions {
		points[i] = forecasting.Point{BindingID: binding.ID, At: s.normalizer.ToStorage(p.At), Value: p.Value}
	}
	if err := s.points.ReplaceRange(ctx, binding.ID, s.normalizer.StorageRange(window), points); err != nil {
		return BatchResult{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"binding_id":  binding.ID,
		"granularity": g,
		"range":       window.String(),
		"points":      len(points),
	}).Info("batch prediction stored")
	return BatchResult{Binding: binding, Points: points}, nil
}

func (s *BatchStepper) stepDaily(ctx context.Context, model models.Model, binding forecasting.Binding, horizon []time.Time) ([]Prediction, error) {
	out := make([]Prediction, 0, len(horizon))
	for _, at := range horizon {
		step, err := s.dispatcher.Run(ctx, model, binding, RunRequest{Horizon: []time.Time{at}})
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", at.Format(time.DateOnly), err)
		}
		out = append(out, step...)
	}
	return out, nil
}

func (s *BatchStepper) stepHourly(
	ctx context.Context,
	model models.Model,
	series forecasting.Series,
	binding forecasting.Binding,
	horizon []time.Time,
	initial float64,
) ([]Prediction, error) {
	out := make([]Prediction, 0, len(horizon))
	predicted := make(map[int64]float64, len(horizon))
	prevHour := initial

	for _, at := range horizon {
		supplied := map[string][]float64{}
		if binding.Declares(forecasting.LagPreviousHour) {
			supplied[forecasting.LagPreviousHour] = []float64{prevHour}
		}
		if binding.Declares(forecasting.LagPreviousDay) {
			prevDay, err := s.previousDay(ctx, series, at, predicted)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", at.Format(time.DateTime), err)
			}
			supplied[forecasting.LagPreviousDay] = []float64{prevDay}
		}

		step, err := s.dispatcher.Run(ctx, model, binding, RunRequest{Horizon: []time.Time{at}, Supplied: supplied})
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", at.Format(time.DateTime), err)
		}
		value := step[0].Value
		predicted[at.Unix()] = value
		prevHour = value
		out = append(out, step[0])
	}
	return out, nil
}

// previousDay prefers this batch's own prediction 24 hours back and falls back to
// the telemetry system.
func (s *BatchStepper) previousDay(ctx context.Context, series forecasting.Series, at time.Time, predicted map[int64]float64) (float64, error) {
	dayBefore := at.Add(-24 * time.Hour)
	if value, ok := predicted[dayBefore.Unix()]; ok {
		return value, nil
	}
	if s.lags == nil {
		return 0, fmt.Errorf("%w: no telemetry reader configured for %s", forecasting.ErrExternalFetch, forecasting.LagPreviousDay)
	}
	if series.ExternalID == "" {
		return 0, fmt.Errorf("%w: forecast %d has no external id for %s", forecasting.ErrConfiguration, series.ID, forecasting.LagPreviousDay)
	}
	return s.lags.ValueAt(ctx, series.ExternalID, s.normalizer.ToStorage(dayBefore))
}
