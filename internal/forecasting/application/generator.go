package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

// BulkSummary counts the outcome of a bulk generation.
type BulkSummary struct {
	Succeeded int
	Failed    int
	Points    int
}

// BulkGenerator regenerates the upcoming horizon of every binding.
type BulkGenerator struct {
	bindings    forecasting.BindingRepository
	generator   Generator
	normalizer  *forecasting.Normalizer
	clock       Clock
	horizonDays int
	logger      logrus.FieldLogger
}

// NewBulkGenerator constructs the bulk generator.
func NewBulkGenerator(
	bindings forecasting.BindingRepository,
	generator Generator,
	normalizer *forecasting.Normalizer,
	clock Clock,
	horizonDays int,
	logger logrus.FieldLogger,
) (*BulkGenerator, error) {
	if bindings == nil {
		return nil, errors.New("bulk generator: nil binding repository")
	}
	if generator == nil {
		return nil, errors.New("bulk generator: nil generator")
	}
	if normalizer == nil {
		return nil, errors.New("bulk generator: nil normalizer")
	}
	if horizonDays <= 0 {
		return nil, errors.New("bulk generator: horizon days must be positive")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BulkGenerator{
		bindings:    bindings,
		generator:   generator,
		normalizer:  normalizer,
		clock:       clock,
		horizonDays: horizonDays,
		logger:      logger,
	}, nil
}

// Window returns the local window generated for a granularity: from today's local
// midnight through the last step of today + horizonDays.
func (g *BulkGenerator) Window(granularity forecasting.Granularity) forecasting.Range {
	today := forecasting.GranularityDaily.Align(g.normalizer.Local(g.clock.Now()))
	last := today.AddDate(0, 0, g.horizonDays)
	if granularity == forecasting.GranularityHourly {
		last = last.Add(23 * time.Hour)
	}
	return forecasting.Range{Start: today, End: last}
}

// Run generates every binding independently. One binding failing does not stop the
// others; the error is non-nil only when every binding failed.
func (g *BulkGenerator) Run(ctx context.Context) (BulkSummary, error) {
	bindings, err := g.bindings.List(ctx)
	if err != nil {
		return BulkSummary{}, err
	}
	var summary BulkSummary
	var lastErr error
	for _, binding := range bindings {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		count, err := g.generator.Generate(ctx, binding, g.Window(binding.Granularity))
		if err != nil {
			summary.Failed++
			lastErr = err
			g.logger.WithField("binding", binding.String()).WithError(err).Error("bulk generation failed")
			continue
		}
		summary.Succeeded++
		summary.Points += count
		g.logger.WithField("binding", binding.String()).WithField("points", count).Info("bulk generation succeeded")
	}
	if summary.Succeeded == 0 && summary.Failed > 0 {
		return summary, lastErr
	}
	return summary, nil
}
