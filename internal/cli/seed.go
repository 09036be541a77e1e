package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"occupancy-forecast/internal/forecasting/application"
	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/forecasting/infrastructure/postgres"
)

// SeedFile is the YAML layout accepted by the seed command.
type SeedFile struct {
	Series []SeedSeries `yaml:"series"`
}

type SeedSeries struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	ExternalID  string      `yaml:"external_id"`
	Models      []SeedModel `yaml:"models"`
}

type SeedModel struct {
	Name        string         `yaml:"name"`
	Path        string         `yaml:"path"`
	ModelType   string         `yaml:"model_type"`
	Granularity string         `yaml:"granularity"`
	ExogColumns []string       `yaml:"exog_columns"`
	ExogRules   map[string]any `yaml:"exog_rules"`
}

// ParseSeed decodes a seed document into catalog specs.
func ParseSeed(data []byte) ([]application.SeriesSpec, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	specs := make([]application.SeriesSpec, 0, len(file.Series))
	for _, s := range file.Series {
		spec := application.SeriesSpec{Series: forecasting.Series{
			Name:        s.Name,
			Description: s.Description,
			ExternalID:  s.ExternalID,
		}}
		for _, m := range s.Models {
			g, err := forecasting.ParseGranularity(m.Granularity)
			if err != nil {
				return nil, fmt.Errorf("seed: model %s: %w", m.Name, err)
			}
			spec.Bindings = append(spec.Bindings, forecasting.Binding{
				Name:        m.Name,
				Path:        m.Path,
				Family:      forecasting.ParseFamily(m.ModelType),
				Granularity: g,
				ExogColumns: m.ExogColumns,
				ExogRules:   m.ExogRules,
			})
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func seedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert series and model bindings from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			specs, err := ParseSeed(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			seriesRepo, err := postgres.NewSeriesRepository(db)
			if err != nil {
				return err
			}
			bindingRepo, err := postgres.NewBindingRepository(db)
			if err != nil {
				return err
			}
			catalog, err := application.NewCatalog(seriesRepo, bindingRepo, nil, a.logger)
			if err != nil {
				return err
			}
			summary, err := catalog.Apply(ctx, specs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d series, %d models\n", summary.Series, summary.Bindings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seeds.yaml", "seed file")
	return cmd
}
