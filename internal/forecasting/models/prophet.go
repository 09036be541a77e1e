package models

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
)

// Output columns of AdditiveRegression.PredictFrame.
const (
	ColTrend = "trend"
	ColYhat  = "yhat"
)

// Seasonality is one Fourier seasonal component. When ConditionName is set the
// component only contributes on rows where that frame column is non-zero.
type Seasonality struct {
	Name          string    `json:"name"`
	Period        float64   `json:"period"`
	FourierOrder  int       `json:"fourier_order"`
	Beta          []float64 `json:"beta"`
	ConditionName string    `json:"condition_name,omitempty"`
}

// AdditiveRegression is a piecewise-linear trend plus additive Fourier seasonalities,
// fitted on a scaled time axis and a scaled target.
type AdditiveRegression struct {
	Start  time.Time `json:"start"`
	TScale float64   `json:"t_scale"`
	YScale float64   `json:"y_scale"`
	K      float64   `json:"k"`
	M      float64   `json:"m"`
	// Changepoints are positions on the scaled time axis, ascending.
	Changepoints  []float64     `json:"changepoints"`
	Delta         []float64     `json:"delta"`
	Seasonalities []Seasonality `json:"seasonalities"`
}

// DecodeAdditiveRegression parses an additive-regression artifact.
func DecodeAdditiveRegression(data []byte) (*AdditiveRegression, error) {
	var m AdditiveRegression
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: prophet artifact: %v", forecasting.ErrModelLoad, err)
	}
	if m.TScale <= 0 {
		return nil, fmt.Errorf("%w: prophet t_scale must be positive", forecasting.ErrModelLoad)
	}
	if len(m.Changepoints) != len(m.Delta) {
		return nil, fmt.Errorf("%w: prophet has %d changepoints and %d deltas", forecasting.ErrModelLoad, len(m.Changepoints), len(m.Delta))
	}
	if m.YScale == 0 {
		m.YScale = 1
	}
	for _, s := range m.Seasonalities {
		if s.Period <= 0 || len(s.Beta) != 2*s.FourierOrder {
			return nil, fmt.Errorf("%w: prophet seasonality %q is malformed", forecasting.ErrModelLoad, s.Name)
		}
	}
	return &m, nil
}

// Family implements Model.
func (m *AdditiveRegression) Family() forecasting.Family { return forecasting.FamilyAdditiveRegression }

// PredictFrame evaluates the model on the frame index (the ds column).
func (m *AdditiveRegression) PredictFrame(frame *features.Table) (*features.Table, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", forecasting.ErrMissingFeature)
	}
	index := frame.Index()
	conditions := make(map[string][]float64)
	for _, s := range m.Seasonalities {
		if s.ConditionName == "" {
			continue
		}
		values, ok := frame.Column(s.ConditionName)
		if !ok {
			return nil, fmt.Errorf("%w: condition column %s", forecasting.ErrMissingFeature, s.ConditionName)
		}
		conditions[s.ConditionName] = values
	}

	trend := make([]float64, len(index))
	yhat := make([]float64, len(index))
	for i, ds := range index {
		t := ds.Sub(m.Start).Seconds() / m.TScale
		g := m.trend(t)
		seasonal := 0.0
		days := float64(ds.Unix()) / 86400
		for _, s := range m.Seasonalities {
			if s.ConditionName != "" && conditions[s.ConditionName][i] == 0 {
				continue
			}
			seasonal += fourier(days, s)
		}
		trend[i] = g * m.YScale
		yhat[i] = (g + seasonal) * m.YScale
		if math.IsNaN(yhat[i]) || math.IsInf(yhat[i], 0) {
			return nil, fmt.Errorf("prophet: non-finite prediction for %s", ds.Format(time.RFC3339))
		}
	}

	out := features.NewTable(index)
	if err := out.Set(ColTrend, trend); err != nil {
		return nil, err
	}
	if err := out.Set(ColYhat, yhat); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *AdditiveRegression) trend(t float64) float64 {
	k, offset := m.K, m.M
	for j, cp := range m.Changepoints {
		if t < cp {
			break
		}
		k += m.Delta[j]
		offset -= cp * m.Delta[j]
	}
	return k*t + offset
}

func fourier(days float64, s Seasonality) float64 {
	var sum float64
	for n := 1; n <= s.FourierOrder; n++ {
		angle := 2 * math.Pi * float64(n) * days / s.Period
		sum += s.Beta[2*(n-1)]*math.Sin(angle) + s.Beta[2*(n-1)+1]*math.Cos(angle)
	}
	return sum
}
