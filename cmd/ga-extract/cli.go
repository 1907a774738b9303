package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/ga-report-extractor/pkg/chunk"
	"github.com/Sternrassler/ga-report-extractor/pkg/config"
	"github.com/Sternrassler/ga-report-extractor/pkg/job"
	"github.com/Sternrassler/ga-report-extractor/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runner is the part of *job.Job the commands use.
type runner interface {
	Run(ctx context.Context, req job.Request) (job.Summary, error)
	Republish(ctx context.Context, table string, date time.Time) (job.Summary, error)
	Close() error
}

type runnerFactory func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (runner, error)

func defaultRunnerFactory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (runner, error) {
	j, err := job.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func newRootCmd(factory runnerFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "ga-extract",
		Short:         "Extract daily Analytics reports into object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML, TOML or JSON configuration file")

	root.AddCommand(newRunCmd(factory), newRepublishCmd(factory))
	return root
}

func newRunCmd(factory runnerFactory) *cobra.Command {
	var table, metricSet, dimensionSet, date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract one day of a report and publish it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			metrics, err := cfg.ResolveFields(metricSet)
			if err != nil {
				return fmt.Errorf("--metric: %w", err)
			}
			dimensions, err := cfg.ResolveFields(dimensionSet)
			if err != nil {
				return fmt.Errorf("--dimension: %w", err)
			}
			day, err := parseDate(date, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := factory(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer r.Close()

			sum, err := r.Run(ctx, job.Request{
				Table:      table,
				Metrics:    metrics,
				Dimensions: dimensions,
				Date:       day,
			})
			if err != nil {
				return err
			}

			logger.Info().
				Str("run_id", sum.RunID).
				Str("key", sum.Key).
				Int("rows", sum.Artifact.Rows).
				Msg("Run complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Destination table name")
	cmd.Flags().StringVarP(&metricSet, "metric", "m", "", "Metric set name from the fields table")
	cmd.Flags().StringVarP(&dimensionSet, "dimension", "d", "", "Dimension set name from the fields table")
	cmd.Flags().StringVar(&date, "date", "", "Report date as YYYYMMDD (default: yesterday)")
	cmd.MarkFlagRequired("table")
	cmd.MarkFlagRequired("metric")
	cmd.MarkFlagRequired("dimension")
	return cmd
}

func newRepublishCmd(factory runnerFactory) *cobra.Command {
	var table, date string

	cmd := &cobra.Command{
		Use:   "republish",
		Short: "Consolidate and publish the chunks a failed run left behind",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			day, err := parseDate(date, time.Now())
			if err != nil {
				return err
			}

			r, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer r.Close()

			sum, err := r.Republish(cmd.Context(), table, day)
			if err != nil {
				return err
			}
			logger.Info().Str("key", sum.Key).Int("rows", sum.Artifact.Rows).Msg("Republish complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Destination table name")
	cmd.Flags().StringVar(&date, "date", "", "Report date as YYYYMMDD")
	cmd.MarkFlagRequired("table")
	cmd.MarkFlagRequired("date")
	return cmd
}

func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Logging.Level)
	logCfg.Pretty = cfg.Logging.Pretty
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)

	return cfg, logging.NewLogger("job"), nil
}

// parseDate parses a YYYYMMDD date; an empty value means the day before now.
func parseDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		y, m, d := now.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(chunk.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYYMMDD: %w", value, err)
	}
	return t, nil
}
