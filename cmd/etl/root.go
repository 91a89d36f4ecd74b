package main

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/argo-profile-etl/internal/config"
	"github.com/couchcryptid/argo-profile-etl/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once the root pre-run has loaded it.
type app struct {
	cfg    *config.Config
	vars   config.Variables
	logger *slog.Logger

	newMetrics func() *observability.Metrics

	sourceDir string
	outputDir string
	logDir    string
	variables string
	batches   int
}

func newRootCommand() *cobra.Command {
	return newRootCommandFor(&app{newMetrics: observability.NewMetrics})
}

func newRootCommandFor(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "etl",
		Short:         "Flatten Argo profile NetCDF files into Parquet and CSV tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.sourceDir, "source-dir", "", "Directory of source .nc files (overrides SOURCE_DIR)")
	flags.StringVar(&a.outputDir, "output-dir", "", "Directory for converted tables (overrides OUTPUT_DIR)")
	flags.StringVar(&a.logDir, "log-dir", "", "Directory for run logs (overrides LOG_DIR)")
	flags.StringVar(&a.variables, "variables", "", "TOML or JSON variables file (overrides VARIABLES_FILE)")
	flags.IntVar(&a.batches, "batches", 0, "Number of batches to plan (overrides BATCH_COUNT)")

	rootCmd.AddCommand(newPlanCommand(a))
	rootCmd.AddCommand(newConvertCommand(a))
	rootCmd.AddCommand(newLoadCommand(a))

	return rootCmd
}

// load reads the environment, applies flag overrides, and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.sourceDir != "" {
		cfg.SourceDir = a.sourceDir
	}
	if a.outputDir != "" {
		cfg.OutputDir = a.outputDir
	}
	if a.logDir != "" {
		cfg.LogDir = a.logDir
	}
	if a.variables != "" {
		cfg.VariablesFile = a.variables
	}
	if cmd.Flags().Changed("batches") {
		if a.batches < 1 {
			return fmt.Errorf("--batches must be at least 1, got %d", a.batches)
		}
		cfg.BatchCount = a.batches
	}

	vars, err := config.LoadVariables(cfg.VariablesFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.vars = vars
	a.logger = sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	return nil
}
