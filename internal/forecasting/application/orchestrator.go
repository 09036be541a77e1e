package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/models"
	"occupancy-forecast/internal/observability/metrics"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Generator produces and persists the points of one binding over a local window.
type Generator interface {
	Generate(ctx context.Context, binding forecasting.Binding, window forecasting.Range) (int, error)
}

// Orchestrator runs load, feature build, predict and persist for a binding.
// Concurrent calls for the same (binding, window) share one run.
type Orchestrator struct {
	bindings   forecasting.BindingRepository
	points     forecasting.PointRepository
	models     models.ArtifactLoader
	dispatcher *Dispatcher
	normalizer *forecasting.Normalizer
	logger     logrus.FieldLogger
	group      singleflight.Group
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(
	bindings forecasting.BindingRepository,
	points forecasting.PointRepository,
	loader models.ArtifactLoader,
	dispatcher *Dispatcher,
	normalizer *forecasting.Normalizer,
	logger logrus.FieldLogger,
) (*Orchestrator, error) {
	if bindings == nil {
		return nil, errors.New("orchestrator: nil binding repository")
	}
	if points == nil {
		return nil, errors.New("orchestrator: nil point repository")
	}
	if loader == nil {
		return nil, errors.New("orchestrator: nil model loader")
	}
	if normalizer == nil {
		return nil, errors.New("orchestrator: nil normalizer")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil, logger)
	}
	return &Orchestrator{
		bindings:   bindings,
		points:     points,
		models:     loader,
		dispatcher: dispatcher,
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// GenerateForModel resolves a binding by id, normalizes the raw range and generates it.
func (o *Orchestrator) GenerateForModel(ctx context.Context, modelID int64, startRaw, endRaw string) (forecasting.Binding, int, error) {
	binding, err := o.bindings.Get(ctx, modelID)
	if err != nil {
		return forecasting.Binding{}, 0, err
	}
	window, err := o.normalizer.Normalize(startRaw, endRaw, binding.Granularity)
	if err != nil {
		return binding, 0, err
	}
	count, err := o.Generate(ctx, binding, window)
	return binding, count, err
}

// Generate replaces the binding's stored points inside window with a fresh forecast.
func (o *Orchestrator) Generate(ctx context.Context, binding forecasting.Binding, window forecasting.Range) (int, error) {
	key := fmt.Sprintf("%d:%s", binding.ID, window)
	// Shared by every waiting caller, so one caller disconnecting must not cancel it.
	shared := context.WithoutCancel(ctx)
	value, err, wasShared := o.group.Do(key, func() (any, error) {
		return o.generate(shared, binding, window)
	})
	if wasShared {
		o.logger.WithField("binding_id", binding.ID).Debug("generation shared with concurrent caller")
	}
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

func (o *Orchestrator) generate(ctx context.Context, binding forecasting.Binding, window forecasting.Range) (int, error) {
	started := time.Now()
	count, err := o.run(ctx, binding, window)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveGenerate(binding.Granularity.String(), result, time.Since(started))

	fields := logrus.Fields{
		"binding_id":  binding.ID,
		"series_id":   binding.SeriesID,
		"granularity": binding.Granularity,
		"range":       window.String(),
	}
	if err != nil {
		o.logger.WithFields(fields).WithError(err).Error("forecast generation failed")
		return 0, err
	}
	o.logger.WithFields(fields).WithField("points", count).Info("forecast generated")
	return count, nil
}

func (o *Orchestrator) run(ctx context.Context, binding forecasting.Binding, window forecasting.Range) (int, error) {
	if !binding.Granularity.IsValid() {
		return 0, fmt.Errorf("%w: %q", forecasting.ErrUnsupportedGranularity, binding.Granularity)
	}
	horizon := binding.Granularity.Horizon(window.Start, window.End)
	model, err := o.models.Load(ctx, binding)
	if err != nil {
		return 0, err
	}
	predictions, err := o.dispatcher.Run(ctx, model, binding, RunRequest{Horizon: horizon})
	if err != nil {
		return 0, err
	}
	points := o.toPoints(binding.ID, predictions)
	if err := o.points.ReplaceRange(ctx, binding.ID, o.normalizer.StorageRange(window), points); err != nil {
		return 0, err
	}
	return len(points), nil
}

func (o *Orchestrator) toPoints(bindingID int64, predictions []Prediction) []forecasting.Point {
	points := make([]forecasting.Point, len(predictions))
	for i, p := range predictions {
		points[i] = forecasting.Point{
			BindingID: bindingID,
			At:        o.normalizer.ToStorage(p.At),
			Value:     p.Value,
		}
	}
	return points
}
