package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

// ModelInvalidator drops cached fitted models for a binding.
type ModelInvalidator interface {
	Invalidate(bindingID int64)
}

// SeriesSpec declares a series and its bindings for seeding.
type SeriesSpec struct {
	Series   forecasting.Series
	Bindings []forecasting.Binding
}

// CatalogSummary counts what a seed run wrote.
type CatalogSummary struct {
	Series   int
	Bindings int
}

// Catalog upserts series and bindings and keeps the model cache coherent.
type Catalog struct {
	series   forecasting.SeriesRepository
	bindings forecasting.BindingRepository
	cache    ModelInvalidator
	logger   logrus.FieldLogger
}

// NewCatalog constructs a Catalog. cache may be nil.
func NewCatalog(series forecasting.SeriesRepository, bindings forecasting.BindingRepository, cache ModelInvalidator, logger logrus.FieldLogger) (*Catalog, error) {
	if series == nil || bindings == nil {
		return nil, errors.New("catalog: nil repository")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Catalog{series: series, bindings: bindings, cache: cache, logger: logger}, nil
}

// Apply upserts every spec. Series are keyed by name, bindings by (series, name).
// A series may not declare two bindings of the same granularity.
func (c *Catalog) Apply(ctx context.Context, specs []SeriesSpec) (CatalogSummary, error) {
	var summary CatalogSummary
	for _, spec := range specs {
		if err := spec.Series.Validate(); err != nil {
			return summary, fmt.Errorf("%w: %v", forecasting.ErrInvalidInput, err)
		}
		seen := make(map[forecasting.Granularity]string, len(spec.Bindings))
		for _, b := range spec.Bindings {
			if other, ok := seen[b.Granularity]; ok {
				return summary, fmt.Errorf("%w: series %s declares models %s and %s for granularity %s",
					forecasting.ErrConfiguration, spec.Series.Name, other, b.Name, b.Granularity)
			}
			seen[b.Granularity] = b.Name
		}

		seriesID, err := c.series.Upsert(ctx, spec.Series)
		if err != nil {
			return summary, fmt.Errorf("catalog: upsert series %s: %w", spec.Series.Name, err)
		}
		summary.Series++

		for _, binding := range spec.Bindings {
			binding.SeriesID = seriesID
			if err := binding.Validate(); err != nil {
				return summary, fmt.Errorf("%w: model %s: %v", forecasting.ErrInvalidInput, binding.Name, err)
			}
			id, err := c.bindings.Upsert(ctx, binding)
			if err != nil {
				return summary, fmt.Errorf("catalog: upsert model %s: %w", binding.Name, err)
			}
			if c.cache != nil {
				c.cache.Invalidate(id)
			}
			summary.Bindings++
			c.logger.WithFields(logrus.Fields{
				"series_id":   seriesID,
				"binding_id":  id,
				"granularity": binding.Granularity,
				"model_type":  binding.Family,
			}).Info("model binding seeded")
		}
	}
	return summary, nil
}
