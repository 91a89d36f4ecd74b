// Package pipeline converts batches of source files into flattened outputs
// across a bounded pool of workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/config"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/couchcryptid/argo-profile-etl/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyFile marks a source that is missing or has zero bytes.
	ErrEmptyFile = errors.New("empty file")
	// ErrCancelled marks a file that was not converted because the run was
	// cancelled.
	ErrCancelled = errors.New("cancelled")
)

// FileConverter converts one source file.
type FileConverter interface {
	Marker(source string) string
	Outputs(source string) []string
	Convert(ctx context.Context, source string) domain.Outcome
}

// Recorder receives every outcome of a run.
type Recorder interface {
	Record(o domain.Outcome) error
}

// Dispatcher runs a FileConverter over a list of files with at most Workers
// conversions in flight.
type Dispatcher struct {
	converter FileConverter
	recorder  Recorder
	workers   int
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewDispatcher creates a Dispatcher. workers is clamped to 1..MaxWorkers.
func NewDispatcher(c FileConverter, r Recorder, workers int, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		converter: c,
		recorder:  r,
		workers:   config.ClampWorkers(workers),
		logger:    logger,
		metrics:   metrics,
	}
}

// Workers returns the effective pool size.
func (d *Dispatcher) Workers() int { return d.workers }

// CheckReadiness returns nil once the first outcome has been recorded.
func (d *Dispatcher) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("no file has been processed yet")
	}
	return nil
}

// Run converts files and returns one outcome per file in input order. Once
// ctx is cancelled no new conversion starts; files never started come back
// as failures wrapping ErrCancelled.
func (d *Dispatcher) Run(ctx context.Context, files []string) []domain.Outcome {
	d.logger.Info("dispatch started", "files", len(files), "workers", d.workers)
	d.metrics.RunInProgress.Set(1)
	defer d.metrics.RunInProgress.Set(0)

	outcomes := make([]domain.Outcome, len(files))
	var g errgroup.Group
	g.SetLimit(d.workers)

	for i, path := range files {
		if ctx.Err() != nil {
			outcomes[i] = d.finish(cancelled(path), domain.Now())
			continue
		}
		g.Go(func() error {
			outcomes[i] = d.process(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("dispatch finished", "files", len(files))
	return outcomes
}

func cancelled(path string) domain.Outcome {
	return domain.Failed(path, ErrCancelled)
}

func (d *Dispatcher) process(ctx context.Context, path string) (o domain.Outcome) {
	start := domain.Now()
	d.metrics.WorkersBusy.Inc()
	defer d.metrics.WorkersBusy.Dec()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("conversion panicked", "source", path, "panic", r)
			o = domain.Failed(path, fmt.Errorf("panic: %v", r))
		}
		o = d.finish(o, start)
	}()

	if ctx.Err() != nil {
		return cancelled(path)
	}

	if marker := d.converter.Marker(path); marker != "" {
		if fi, err := os.Stat(marker); err == nil && fi.Size() > 0 {
			o = domain.Succeeded(path, 0)
			o.Skipped = true
			o.Outputs = d.converter.Outputs(path)
			return o
		}
	}

	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		return domain.Failed(path, fmt.Errorf("%w: %s", ErrEmptyFile, filepath.Base(path)))
	}

	o = d.converter.Convert(ctx, path)
	if o.Status == domain.StatusFailure && errors.Is(o.Err, context.Canceled) {
		o.Err = ErrCancelled
	}
	return o
}

// finish stamps o, records it, and updates metrics.
func (d *Dispatcher) finish(o domain.Outcome, start time.Time) domain.Outcome {
	now := domain.Now()
	o.AttemptID = uuid.NewString()[:8]
	o.FinishedAt = now
	o.Duration = now.Sub(start)

	if err := d.recorder.Record(o); err != nil {
		d.logger.Error("record outcome failed", "source", o.Source, "error", err)
	}
	d.ready.Store(true)
	d.observe(o)

	switch {
	case o.Status == domain.StatusFailure:
		d.logger.Warn("conversion failed", "source", o.Source, "attempt", o.AttemptID,
			"structural", IsStructural(o.Err), "error", o.Err)
	case o.Skipped:
		d.logger.Debug("conversion skipped", "source", o.Source, "attempt", o.AttemptID)
	default:
		d.logger.Debug("conversion finished", "source", o.Source, "attempt", o.AttemptID,
			"status", o.Status, "rows", o.Rows, "duration", o.Duration)
	}
	return o
}

func (d *Dispatcher) observe(o domain.Outcome) {
	label := o.Status.String()
	if o.Skipped {
		label = "skipped"
	}
	d.metrics.FilesProcessed.WithLabelValues(label).Inc()
	if o.Skipped {
		return
	}
	d.metrics.RowsWritten.Add(float64(o.Rows))
	d.metrics.ConversionDuration.Observe(o.Duration.Seconds())
	for _, m := range o.Missing {
		name, _, _ := strings.Cut(m, ":")
		d.metrics.MissingVariables.WithLabelValues(name).Inc()
	}
}
