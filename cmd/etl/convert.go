package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/csvout"
	"github.com/couchcryptid/argo-profile-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/argo-profile-etl/internal/adapter/kafka"
	"github.com/couchcryptid/argo-profile-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/argo-profile-etl/internal/adapter/parquet"
	"github.com/couchcryptid/argo-profile-etl/internal/batch"
	"github.com/couchcryptid/argo-profile-etl/internal/config"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/couchcryptid/argo-profile-etl/internal/observability"
	"github.com/couchcryptid/argo-profile-etl/internal/pipeline"
	"github.com/couchcryptid/argo-profile-etl/internal/run"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

const lockFile = ".etl.lock"

func newConvertCommand(a *app) *cobra.Command {
	var (
		selection string
		workers   int
		formats   string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the selected batches of source files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("workers") {
				a.cfg.Workers = config.ClampWorkers(workers)
			}
			if formats != "" {
				f, err := config.ParseFormats(formats)
				if err != nil {
					return err
				}
				a.cfg.OutputFormats = f
			}
			return a.convert(cmd, selection)
		},
	}

	cmd.Flags().StringVar(&selection, "batch", "all", `Batches to convert: "all" or a comma-separated list such as 1,3`)
	cmd.Flags().IntVar(&workers, "workers", 0, fmt.Sprintf("Concurrent conversions, 1-%d (overrides WORKERS)", config.MaxWorkers))
	cmd.Flags().StringVar(&formats, "formats", "", "Comma-separated output formats (overrides OUTPUT_FORMATS)")
	return cmd
}

func (a *app) convert(cmd *cobra.Command, selection string) error {
	cfg, logger := a.cfg, a.logger

	all, err := batch.Discover(cfg.SourceDir, cfg.SourcePattern)
	if err != nil {
		return err
	}
	batches := batch.Plan(all, cfg.BatchCount)
	sel, err := batch.Resolve(selection, batches, all)
	for _, bad := range sel.Invalid {
		logger.Warn("ignoring batch selection", "token", bad.Token, "reason", bad.Reason)
	}
	if err != nil {
		return fmt.Errorf("select batches: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.OutputDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock output dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("another convert run is writing to %s", cfg.OutputDir)
	}
	defer func() { _ = lock.Unlock() }()

	writers, err := tableWriters(cfg.OutputFormats)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := a.newMetrics()
	state, err := run.NewState(run.Options{
		LogDir:      cfg.LogDir,
		Total:       len(sel.Files),
		RecentLimit: cfg.RecentLimit,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	for _, bad := range sel.Invalid {
		state.Log(run.LevelWarn, bad.Error())
	}
	state.Log(run.LevelInfo, fmt.Sprintf("Batches %v, %d workers, formats %v", sel.Batches, cfg.Workers, cfg.OutputFormats))

	converter := pipeline.NewConverter(openSource, a.vars.Layout(), writers, cfg.OutputDir, logger)
	dispatcher := pipeline.NewDispatcher(converter, state, cfg.Workers, logger, metrics)

	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, dispatcher, state, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	reportCtx, stopReport := context.WithCancel(ctx)
	reported := make(chan struct{})
	reporter := run.NewReporter(state, cmd.OutOrStdout(), cfg.ProgressInterval)
	go func() {
		defer close(reported)
		reporter.Run(reportCtx)
	}()

	outcomes := dispatcher.Run(ctx, sel.Files)

	stopReport()
	<-reported

	snap, closeErr := state.Close()
	if closeErr != nil {
		logger.Error("close run log", "error", closeErr)
	}
	logger.Info("run finished",
		"run_id", snap.RunID,
		"success", snap.Success,
		"warning", snap.Warning,
		"failure", snap.Failure,
		"skipped", snap.Skipped,
		"rows", snap.Rows,
		"log", snap.LogPath,
	)

	if cfg.KafkaEnabled() {
		a.publish(ctx, state.ID(), outcomes, metrics)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run %s interrupted: %w", snap.RunID, context.Canceled)
	}
	return closeErr
}

func (a *app) publish(ctx context.Context, runID string, outcomes []domain.Outcome, metrics *observability.Metrics) {
	pub := kafkaadapter.NewPublisher(a.cfg, a.logger, metrics)
	defer func() {
		if err := pub.Close(); err != nil {
			a.logger.Error("kafka writer close error", "error", err)
		}
	}()
	// An interrupted run still reports what it finished.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := pub.Publish(ctx, runID, outcomes); err != nil {
		a.logger.Error("publish outcomes failed", "error", err)
	}
}

func openSource(path string) (pipeline.Source, error) {
	f, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func tableWriters(formats []string) ([]pipeline.TableWriter, error) {
	writers := make([]pipeline.TableWriter, 0, len(formats))
	for _, f := range formats {
		switch f {
		case config.FormatParquet:
			writers = append(writers, parquet.NewWriter())
		case config.FormatCSV:
			writers = append(writers, csvout.NewWriter())
		default:
			return nil, fmt.Errorf("unsupported output format %q", f)
		}
	}
	return writers, nil
}
