package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
	"occupancy-forecast/internal/forecasting/models"
	"occupancy-forecast/internal/observability/metrics"
)

// AdditiveShift is the offset between the API's local timestamps and the wall clock
// additive-regression models were trained on. It applies to that family only.
const AdditiveShift = 3 * time.Hour

// Frame columns of the additive-regression family.
const (
	colWeekday = "weekday"
	colWeekend = "weekend"
)

// RunRequest is one prediction call.
type RunRequest struct {
	// Horizon is the ordered naive local timestamps to predict.
	Horizon []time.Time
	// Supplied holds externally provided covariates, one value per horizon step.
	Supplied map[string][]float64
}

// Prediction is one predicted value at a naive local timestamp.
type Prediction struct {
	At    time.Time
	Value float64
}

// Dispatcher runs the prediction routine of a model's family.
type Dispatcher struct {
	holidays *features.HolidayCalendar
	logger   logrus.FieldLogger
}

// NewDispatcher constructs a dispatcher. A nil calendar uses the Brazilian one.
func NewDispatcher(holidays *features.HolidayCalendar, logger logrus.FieldLogger) *Dispatcher {
	if holidays == nil {
		holidays = features.NewBrazilHolidayCalendar()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{holidays: holidays, logger: logger}
}

// Run predicts every horizon step with the family routine of the binding.
func (d *Dispatcher) Run(ctx context.Context, model models.Model, binding forecasting.Binding, req RunRequest) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("%w: nil model for binding %d", forecasting.ErrModelLoad, binding.ID)
	}
	for name, values := range req.Supplied {
		if len(values) != len(req.Horizon) {
			return nil, fmt.Errorf("%w: %s has %d values for %d steps", forecasting.ErrInvalidInput, name, len(values), len(req.Horizon))
		}
	}
	if len(req.Horizon) == 0 {
		return nil, nil
	}

	started := time.Now()
	var (
		values []float64
		err    error
	)
	switch binding.Family {
	case forecasting.FamilyExogRegression:
		values, err = d.runExogRegression(model, binding, req)
	case forecasting.FamilyAdditiveRegression:
		values, err = d.runAdditiveRegression(model, binding, req)
	case forecasting.FamilyGradientBoostedTree:
		values, err = d.runTreeEnsemble(model, binding, req)
	default:
		err = fmt.Errorf("%w: %q", forecasting.ErrUnsupportedModelType, binding.Family)
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveDispatch(string(binding.Family), result, time.Since(started))
	if err != nil {
		return nil, err
	}
	if len(values) != len(req.Horizon) {
		return nil, fmt.Errorf("forecasting: %s returned %d values for %d steps", binding.Family, len(values), len(req.Horizon))
	}

	out := make([]Prediction, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("forecasting: non-finite prediction at %s", req.Horizon[i].Format(time.DateTime))
		}
		out[i] = Prediction{At: req.Horizon[i], Value: v}
	}
	d.logger.WithFields(logrus.Fields{
		"binding_id": binding.ID,
		"family":     binding.Family,
		"steps":      len(out),
	}).Debug("dispatch complete")
	return out, nil
}

// Covariates builds the contract-resolved covariate matrix for a binding: calendar
// synthesis, holiday-or-bridge flags, rule overlay, supplied values, then resolution
// to the binding's declared columns.
func (d *Dispatcher) Covariates(binding forecasting.Binding, req RunRequest) (*features.Table, error) {
	table := features.Synthesize(req.Horizon)
	d.holidays.AddHolidayOrBridge(table)
	features.ApplyRules(table, binding.ExogRules)
	for _, name := range sortedKeys(req.Supplied) {
		if err := table.Set(name, req.Supplied[name]); err != nil {
			return nil, fmt.Errorf("%w: %v", forecasting.ErrInvalidInput, err)
		}
	}
	return features.Resolve(table, binding.ExogColumns)
}

func (d *Dispatcher) runExogRegression(model models.Model, binding forecasting.Binding, req RunRequest) ([]float64, error) {
	if len(binding.ExogColumns) == 0 {
		return nil, fmt.Errorf("%w: exog_columns not set for binding %d", forecasting.ErrConfiguration, binding.ID)
	}
	forecaster, ok := model.(models.Forecaster)
	if !ok {
		return nil, fmt.Errorf("%w: %s model cannot forecast", forecasting.ErrUnsupportedModelType, model.Family())
	}
	matrix, err := d.Covariates(binding, req)
	if err != nil {
		return nil, err
	}
	if err := features.EnsureColumns(matrix, binding.ExogColumns); err != nil {
		return nil, err
	}
	values, err := forecaster.Forecast(len(req.Horizon), matrix)
	if err != nil {
		return nil, err
	}
	return clipRound(values), nil
}

func (d *Dispatcher) runAdditiveRegression(model models.Model, binding forecasting.Binding, req RunRequest) ([]float64, error) {
	if !binding.Granularity.IsValid() {
		return nil, fmt.Errorf("%w: additive-regression needs D or H, got %q", forecasting.ErrUnsupportedGranularity, binding.Granularity)
	}
	predictor, ok := model.(models.FramePredictor)
	if !ok {
		return nil, fmt.Errorf("%w: %s model cannot predict frames", forecasting.ErrUnsupportedModelType, model.Family())
	}

	shifted := make([]time.Time, len(req.Horizon))
	for i, at := range req.Horizon {
		shifted[i] = at.Add(AdditiveShift)
	}
	frame := features.NewTable(shifted)
	if binding.Granularity == forecasting.GranularityHourly {
		weekday := make([]float64, len(shifted))
		weekend := make([]float64, len(shifted))
		for i, ds := range shifted {
			if features.DayOfWeek(ds) < 5 {
				weekday[i] = 1
			} else {
				weekend[i] = 1
			}
		}
		_ = frame.Set(colWeekday, weekday)
		_ = frame.Set(colWeekend, weekend)
	}
	for _, name := range sortedKeys(req.Supplied) {
		if err := frame.Set(name, req.Supplied[name]); err != nil {
			return nil, fmt.Errorf("%w: %v", forecasting.ErrInvalidInput, err)
		}
	}

	out, err := predictor.PredictFrame(frame)
	if err != nil {
		return nil, err
	}
	values, ok := out.Column(models.ColYhat)
	if !ok {
		return nil, fmt.Errorf("%w: additive-regression output has no %s column", forecasting.ErrMissingFeature, models.ColYhat)
	}
	// Values map back onto the unshifted horizon in Run.
	return clipRound(values), nil
}

func (d *Dispatcher) runTreeEnsemble(model models.Model, binding forecasting.Binding, req RunRequest) ([]float64, error) {
	predictor, ok := model.(models.Predictor)
	if !ok {
		return nil, fmt.Errorf("%w: %s model cannot predict", forecasting.ErrUnsupportedModelType, model.Family())
	}
	matrix, err := TreeFeatureVector(req.Horizon)
	if err != nil {
		return nil, err
	}
	// exog_columns selects and orders the fixed vector plus supplied lags. Nothing is zero-filled.
	if len(binding.ExogColumns) > 0 {
		for _, name := range sortedKeys(req.Supplied) {
			if err := matrix.Set(name, req.Supplied[name]); err != nil {
				return nil, fmt.Errorf("%w: %v", forecasting.ErrInvalidInput, err)
			}
		}
		if matrix, err = matrix.Select(binding.ExogColumns); err != nil {
			return nil, err
		}
	}
	values, err := predictor.Predict(matrix)
	if err != nil {
		return nil, err
	}
	return clampCount(values), nil
}

// clipRound clips negatives to 0 and rounds half away from zero to 2 decimals.
func clipRound(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = v
			continue
		}
		out[i] = decimal.NewFromFloat(v).Round(2).InexactFloat64()
	}
	return out
}

// clampCount floors at 0 and truncates to a whole count.
func clampCount(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = v
			continue
		}
		out[i] = math.Trunc(math.Max(v, 0))
	}
	return out
}
