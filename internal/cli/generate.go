package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"occupancy-forecast/internal/forecasting/application"
	"occupancy-forecast/internal/observability/metrics"
)

func generateCmd(a *app) *cobra.Command {
	var horizonDays int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate predictions for every model from today over the horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			metrics.Init(db, a.logger)

			svc, err := buildServices(a.cfg, db, nil, a.logger)
			if err != nil {
				return err
			}
			if horizonDays <= 0 {
				horizonDays = a.cfg.Generate.HorizonDays
			}
			bulk, err := application.NewBulkGenerator(svc.bindings, svc.orchestrator, svc.normalizer, application.SystemClock{}, horizonDays, a.logger)
			if err != nil {
				return err
			}
			summary, err := bulk.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Modelos processados com sucesso: %d\n", summary.Succeeded)
			if summary.Failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Modelos com erro: %d\n", summary.Failed)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&horizonDays, "days", 0, "horizon in days (default generate.horizon_days)")
	return cmd
}
