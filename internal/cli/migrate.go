package cli

import (
	"github.com/spf13/cobra"

	"occupancy-forecast/internal/forecasting/infrastructure/postgres"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			a.logger.WithField("applied", applied).Info("migrations complete")
			return nil
		},
	}
}
