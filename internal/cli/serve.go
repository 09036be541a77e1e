package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"occupancy-forecast/internal/auth"
	forecasthttp "occupancy-forecast/internal/forecasting/interfaces/http"
	"occupancy-forecast/internal/observability/metrics"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the forecast HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	db, err := openDatabase(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	metrics.Init(db, a.logger)

	lags, err := newLagReader(a.cfg, a.logger)
	if err != nil {
		return err
	}
	svc, err := buildServices(a.cfg, db, lags, a.logger)
	if err != nil {
		return err
	}

	exempt := []string{"/healthz", "/metrics", "/api/healthz", "/api/metrics"}
	authMiddleware := auth.NewMiddleware([]byte(a.cfg.Auth.JWTSecret), auth.NewDefaultPolicy(exempt, nil))
	if !authMiddleware.Enabled() {
		a.logger.Warn("auth.jwt_secret not set; API is unauthenticated")
	}
	handler, err := forecasthttp.NewRouter(forecasthttp.Dependencies{
		Series:       svc.series,
		Bindings:     svc.bindings,
		Points:       svc.points,
		Orchestrator: svc.orchestrator,
		Reader:       svc.reader,
		Single:       svc.single,
		Batch:        svc.batch,
		Normalizer:   svc.normalizer,
		Auth:         authMiddleware,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", a.cfg.HTTP.Addr).Info("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
