package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/observability/metrics"
)

// Loader reads fitted-model artifacts; relative paths resolve against baseDir.
type Loader struct {
	baseDir string
}

// NewLoader creates a Loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = "."
	}
	return &Loader{baseDir: baseDir}
}

// Load decodes the artifact for a binding using the decoder of its family.
func (l *Loader) Load(ctx context.Context, binding forecasting.Binding) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !binding.Family.IsKnown() {
		return nil, fmt.Errorf("%w: %q", forecasting.ErrUnsupportedModelType, binding.Family)
	}
	started := time.Now()
	model, err := l.load(binding)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveModelLoad(string(binding.Family), result, time.Since(started))
	return model, err
}

func (l *Loader) load(binding forecasting.Binding) (Model, error) {
	path := l.resolve(binding.Path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("%w: %s artifact must be .json, got %q", forecasting.ErrModelLoad, binding.Family, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forecasting.ErrModelLoad, err)
	}
	switch binding.Family {
	case forecasting.FamilyExogRegression:
		return DecodeExogRegression(data)
	case forecasting.FamilyAdditiveRegression:
		return DecodeAdditiveRegression(data)
	case forecasting.FamilyGradientBoostedTree:
		return DecodeTreeEnsemble(data)
	default:
		return nil, fmt.Errorf("%w: %q", forecasting.ErrUnsupportedModelType, binding.Family)
	}
}

func (l *Loader) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(l.baseDir, path)
}
