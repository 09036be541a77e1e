package models

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
)

// ExogRegression is a linear regression on exogenous covariates whose errors follow
// a non-seasonal plus seasonal autoregressive process.
type ExogRegression struct {
	ExogNames      []string           `json:"exog_names"`
	Intercept      float64            `json:"intercept"`
	Coefficients   map[string]float64 `json:"coefficients"`
	AR             []float64          `json:"ar"`
	SeasonalAR     []float64          `json:"seasonal_ar"`
	SeasonalPeriod int                `json:"seasonal_period"`
	// LastResiduals holds the in-sample residual tail, oldest first.
	LastResiduals []float64 `json:"last_residuals"`
}

// DecodeExogRegression parses an exogenous-regression artifact.
func DecodeExogRegression(data []byte) (*ExogRegression, error) {
	var m ExogRegression
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: sarimax artifact: %v", forecasting.ErrModelLoad, err)
	}
	if len(m.ExogNames) == 0 {
		return nil, fmt.Errorf("%w: sarimax artifact has no exog_names", forecasting.ErrModelLoad)
	}
	for _, name := range m.ExogNames {
		if _, ok := m.Coefficients[name]; !ok {
			return nil, fmt.Errorf("%w: sarimax artifact has no coefficient for %s", forecasting.ErrModelLoad, name)
		}
	}
	if len(m.SeasonalAR) > 0 && m.SeasonalPeriod <= 0 {
		return nil, fmt.Errorf("%w: sarimax seasonal_ar without seasonal_period", forecasting.ErrModelLoad)
	}
	return &m, nil
}

// Family implements Model.
func (m *ExogRegression) Family() forecasting.Family { return forecasting.FamilyExogRegression }

// Forecast returns the steps-ahead mean forecast. exog must carry exactly the fitted
// covariates, one row per step.
func (m *ExogRegression) Forecast(steps int, exog *features.Table) ([]float64, error) {
	if steps < 0 {
		return nil, fmt.Errorf("sarimax: negative steps %d", steps)
	}
	if exog == nil || exog.Len() != steps {
		return nil, fmt.Errorf("%w: sarimax needs %d exog rows", forecasting.ErrMissingFeature, steps)
	}
	if len(exog.Columns()) != len(m.ExogNames) {
		return nil, fmt.Errorf("%w: sarimax fitted on %d covariates, got %d", forecasting.ErrMissingFeature, len(m.ExogNames), len(exog.Columns()))
	}
	cols := make([][]float64, len(m.ExogNames))
	for j, name := range m.ExogNames {
		values, ok := exog.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", forecasting.ErrMissingFeature, name)
		}
		cols[j] = values
	}

	history := append([]float64(nil), m.LastResiduals...)
	out := make([]float64, steps)
	for i := 0; i < steps; i++ {
		y := m.Intercept
		for j, name := range m.ExogNames {
			y += m.Coefficients[name] * cols[j][i]
		}
		e := m.residual(history)
		history = append(history, e)
		out[i] = y + e
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("sarimax: non-finite forecast at step %d", i)
		}
	}
	return out, nil
}

// residual forecasts the next error term; future shocks are zero in expectation.
func (m *ExogRegression) residual(history []float64) float64 {
	n := len(history)
	var e float64
	for lag, phi := range m.AR {
		if idx := n - 1 - lag; idx >= 0 {
			e += phi * history[idx]
		}
	}
	for k, phi := range m.SeasonalAR {
		if idx := n - (k+1)*m.SeasonalPeriod; idx >= 0 {
			e += phi * history[idx]
		}
	}
	return e
}
