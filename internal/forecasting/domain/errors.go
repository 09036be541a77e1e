package forecasting

import "errors"

var (
	// ErrConfiguration is returned when a binding lacks a required declaration (e.g. exog_columns).
	ErrConfiguration = errors.New("forecasting: configuration error")
	// ErrUnsupportedGranularity is returned when a granularity is not daily or hourly.
	ErrUnsupportedGranularity = errors.New("forecasting: unsupported granularity")
	// ErrUnsupportedModelType is returned when no prediction routine exists for a family tag.
	ErrUnsupportedModelType = errors.New("forecasting: unsupported model type")
	// ErrMissingFeature is returned when a required covariate column is absent at dispatch time.
	ErrMissingFeature = errors.New("forecasting: missing feature")
	// ErrMissingInitialFeature is returned when an hourly batch has no initial lag value.
	ErrMissingInitialFeature = errors.New("forecasting: missing initial feature")
	// ErrInvalidDateRange is returned when start is after end or a date cannot be parsed.
	ErrInvalidDateRange = errors.New("forecasting: invalid date range")
	// ErrModelLoad is returned when a fitted model artifact cannot be loaded.
	ErrModelLoad = errors.New("forecasting: model load failed")
	// ErrExternalFetch is returned when the telemetry lookup fails.
	ErrExternalFetch = errors.New("forecasting: external fetch failed")
	// ErrNotFound is returned when a series or binding does not exist.
	ErrNotFound = errors.New("forecasting: not found")
	// ErrInvalidInput is returned for missing or malformed request values.
	ErrInvalidInput = errors.New("forecasting: invalid input")
)
