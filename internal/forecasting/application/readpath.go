package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/observability/metrics"
)

// ReadStatus tells how a prediction read related to generation.
type ReadStatus string

const (
	// ReadFresh means stored coverage was complete, or no window was requested.
	ReadFresh ReadStatus = "fresh"
	// ReadRegenerated means the window was regenerated before reading.
	ReadRegenerated ReadStatus = "regenerated"
	// ReadStale means regeneration failed and stored data was returned as is.
	ReadStale ReadStatus = "stale"
)

// ReadRequest filters a prediction read. Empty strings and zero ids mean "not given".
type ReadRequest struct {
	SeriesID int64
	ModelID  int64
	Start    string
	End      string
	// SkipFill returns stored points only, without regenerating gaps.
	SkipFill bool
}

// ReadResult carries the points and the generation outcome of one read.
type ReadResult struct {
	Points []forecasting.Point
	Status ReadStatus
	// GenerationErr is set when Status is ReadStale.
	GenerationErr error
}

// Reader serves stored predictions, regenerating a requested window whose
// stored coverage is short before reading it.
type Reader struct {
	series     forecasting.SeriesRepository
	bindings   forecasting.BindingRepository
	points     forecasting.PointRepository
	generator  Generator
	normalizer *forecasting.Normalizer
	logger     logrus.FieldLogger
}

// NewReader constructs the read path.
func NewReader(
	series forecasting.SeriesRepository,
	bindings forecasting.BindingRepository,
	points forecasting.PointRepository,
	generator Generator,
	normalizer *forecasting.Normalizer,
	logger logrus.FieldLogger,
) (*Reader, error) {
	if series == nil || bindings == nil || points == nil {
		return nil, errors.New("reader: nil repository")
	}
	if generator == nil {
		return nil, errors.New("reader: nil generator")
	}
	if normalizer == nil {
		return nil, errors.New("reader: nil normalizer")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reader{
		series:     series,
		bindings:   bindings,
		points:     points,
		generator:  generator,
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// Read returns the matching points ordered by timestamp. Generation failures never
// fail the read; they downgrade the result to ReadStale.
func (r *Reader) Read(ctx context.Context, req ReadRequest) (ReadResult, error) {
	if _, err := r.series.Get(ctx, req.SeriesID); err != nil {
		return ReadResult{}, err
	}
	query := forecasting.PointQuery{SeriesID: req.SeriesID, BindingID: req.ModelID}
	status := ReadFresh
	var genErr error

	hasStart := strings.TrimSpace(req.Start) != ""
	hasEnd := strings.TrimSpace(req.End) != ""

	if req.ModelID != 0 {
		binding, err := r.bindings.Get(ctx, req.ModelID)
		if err != nil {
			return ReadResult{}, err
		}
		if binding.SeriesID != req.SeriesID {
			return ReadResult{}, fmt.Errorf("%w: model %d does not belong to forecast %d", forecasting.ErrNotFound, req.ModelID, req.SeriesID)
		}
		if hasStart && hasEnd {
			window, err := r.normalizer.Normalize(req.Start, req.End, binding.Granularity)
			if err != nil {
				return ReadResult{}, err
			}
			stored := r.normalizer.StorageRange(window)
			query.Start, query.End = stored.Start, stored.End
			if !req.SkipFill {
				status, genErr = r.fill(ctx, binding, window, stored)
			}
			hasStart, hasEnd = false, false
		}
	}

	if hasStart {
		start, err := r.normalizer.ParseInstant(req.Start)
		if err != nil {
			return ReadResult{}, err
		}
		query.Start = start.UTC()
	}
	if hasEnd {
		end, err := r.normalizer.ParseInstant(req.End)
		if err != nil {
			return ReadResult{}, err
		}
		query.End = end.UTC()
	}

	points, err := r.points.List(ctx, query)
	if err != nil {
		return ReadResult{}, err
	}
	if !req.SkipFill {
		metrics.IncLazyFill(string(status))
	}
	return ReadResult{Points: points, Status: status, GenerationErr: genErr}, nil
}

func (r *Reader) fill(ctx context.Context, binding forecasting.Binding, window, stored forecasting.Range) (ReadStatus, error) {
	existing, err := r.points.CountRange(ctx, binding.ID, stored)
	if err != nil {
		return r.stale(binding, window, err)
	}
	expected := binding.Granularity.ExpectedCount(window.Start, window.End)
	if existing >= expected {
		return ReadFresh, nil
	}
	r.logger.WithFields(logrus.Fields{
		"binding_id": binding.ID,
		"range":      window.String(),
		"existing":   existing,
		"expected":   expected,
	}).Info("lazy fill: regenerating window")
	if _, err := r.generator.Generate(ctx, binding, window); err != nil {
		return r.stale(binding, window, err)
	}
	return ReadRegenerated, nil
}

func (r *Reader) stale(binding forecasting.Binding, window forecasting.Range, err error) (ReadStatus, error) {
	r.logger.WithFields(logrus.Fields{
		"binding_id": binding.ID,
		"range":      window.String(),
	}).WithError(err).Warn("lazy fill failed, returning stored data")
	return ReadStale, err
}
