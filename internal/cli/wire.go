package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"occupancy-forecast/internal/config"
	"occupancy-forecast/internal/forecasting/adapters/thingsboard"
	"occupancy-forecast/internal/forecasting/application"
	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/domain/features"
	"occupancy-forecast/internal/forecasting/infrastructure/postgres"
	"occupancy-forecast/internal/forecasting/models"
)

type services struct {
	series       forecasting.SeriesRepository
	bindings     forecasting.BindingRepository
	points       forecasting.PointRepository
	cache        *models.Cache
	normalizer   *forecasting.Normalizer
	orchestrator *application.Orchestrator
	reader       *application.Reader
	single       *application.SinglePredictor
	batch        *application.BatchStepper
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
}

func newNormalizer(cfg *config.Config) (*forecasting.Normalizer, error) {
	loc, err := time.LoadLocation(cfg.Forecast.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return forecasting.NewNormalizer(loc, cfg.Forecast.StorageOffset)
}

func newLagReader(cfg *config.Config, logger logrus.FieldLogger) (application.LagReader, error) {
	if cfg.ThingsBoard.BaseURL == "" {
		logger.Info("thingsboard not configured; previous-day lags unavailable")
		return nil, nil
	}
	client, err := thingsboard.NewClient(thingsboard.Config{
		BaseURL:    cfg.ThingsBoard.BaseURL,
		Token:      cfg.ThingsBoard.Token,
		EntityType: cfg.ThingsBoard.EntityType,
		LagKey:     cfg.ThingsBoard.LagKey,
		Timeout:    cfg.ThingsBoard.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildServices(cfg *config.Config, db *sql.DB, lags application.LagReader, logger logrus.FieldLogger) (*services, error) {
	seriesRepo, err := postgres.NewSeriesRepository(db)
	if err != nil {
		return nil, err
	}
	bindingRepo, err := postgres.NewBindingRepository(db)
	if err != nil {
		return nil, err
	}
	pointRepo, err := postgres.NewPointRepository(db)
	if err != nil {
		return nil, err
	}
	return wireServices(cfg, seriesRepo, bindingRepo, pointRepo, lags, logger)
}

func wireServices(
	cfg *config.Config,
	seriesRepo forecasting.SeriesRepository,
	bindingRepo forecasting.BindingRepository,
	pointRepo forecasting.PointRepository,
	lags application.LagReader,
	logger logrus.FieldLogger,
) (*services, error) {
	normalizer, err := newNormalizer(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := models.NewCache(models.NewLoader(cfg.Models.BaseDir), cfg.Models.CacheSize)
	if err != nil {
		return nil, err
	}
	dispatcher := application.NewDispatcher(features.NewBrazilHolidayCalendar(), logger)

	orchestrator, err := application.NewOrchestrator(bindingRepo, pointRepo, cache, dispatcher, normalizer, logger)
	if err != nil {
		return nil, err
	}
	reader, err := application.NewReader(seriesRepo, bindingRepo, pointRepo, orchestrator, normalizer, logger)
	if err != nil {
		return nil, err
	}
	single, err := application.NewSinglePredictor(seriesRepo, bindingRepo, pointRepo, cache, dispatcher, normalizer, logger)
	if err != nil {
		return nil, err
	}
	batch, err := application.NewBatchStepper(seriesRepo, bindingRepo, pointRepo, cache, dispatcher, normalizer, lags, logger)
	if err != nil {
		return nil, err
	}
	return &services{
		series:       seriesRepo,
		bindings:     bindingRepo,
		points:       pointRepo,
		cache:        cache,
		normalizer:   normalizer,
		orchestrator: orchestrator,
		reader:       reader,
		single:       single,
		batch:        batch,
	}, nil
}
