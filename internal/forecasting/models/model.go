// Package models decodes fitted-model artifacts and exposes them as prediction capabilities.
package models

import (
	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
)

// Model is a fitted artifact. A model exposes exactly one of the capability
// interfaces below; callers probe for it with a type assertion.
type Model interface {
	Family() forecasting.Family
}

// Forecaster produces steps future values conditioned on a covariate table.
type Forecaster interface {
	Model
	Forecast(steps int, exog *features.Table) ([]float64, error)
}

// FramePredictor predicts from a timestamp-indexed frame and returns named output columns.
type FramePredictor interface {
	Model
	PredictFrame(frame *features.Table) (*features.Table, error)
}

// Predictor predicts one value per row of a feature matrix.
type Predictor interface {
	Model
	Predict(matrix *features.Table) ([]float64, error)
}
