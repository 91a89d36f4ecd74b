package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/argo-profile-etl/internal/domain"
)

// Source is an open input file.
type Source interface {
	domain.VariableSource
	Close() error
}

// Opener opens a source file for reading.
type Opener func(path string) (Source, error)

// TableWriter encodes a flattened table into one output format.
type TableWriter interface {
	Extension() string
	Write(path string, t *domain.Table) error
}

// Converter turns one source file into one output file per writer.
type Converter struct {
	open      Opener
	layout    domain.Layout
	writers   []TableWriter
	outputDir string
	logger    *slog.Logger
}

// NewConverter creates a Converter. The first writer's output is the marker
// used to detect already converted files.
func NewConverter(open Opener, layout domain.Layout, writers []TableWriter, outputDir string, logger *slog.Logger) *Converter {
	return &Converter{
		open:      open,
		layout:    layout,
		writers:   writers,
		outputDir: outputDir,
		logger:    logger,
	}
}

// OutputPath returns the output path of source for the given extension.
func (c *Converter) OutputPath(source, ext string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(c.outputDir, base+ext)
}

// Marker returns the output path whose presence marks source as converted.
func (c *Converter) Marker(source string) string {
	if len(c.writers) == 0 {
		return ""
	}
	return c.OutputPath(source, c.writers[0].Extension())
}

// Outputs returns every output path of source.
func (c *Converter) Outputs(source string) []string {
	out := make([]string, len(c.writers))
	for i, w := range c.writers {
		out[i] = c.OutputPath(source, w.Extension())
	}
	return out
}

// Convert reads source, flattens it, and writes every output. Structural
// problems and I/O errors yield a Failure outcome; missing variables yield a
// Warning.
func (c *Converter) Convert(ctx context.Context, source string) domain.Outcome {
	if err := ctx.Err(); err != nil {
		return domain.Failed(source, err)
	}

	src, err := c.open(source)
	if err != nil {
		return domain.Failed(source, fmt.Errorf("open source: %w", err))
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			c.logger.Warn("close source failed", "source", source, "error", cerr)
		}
	}()

	profiles := c.layout.Read(src, source)
	table, err := c.layout.Flatten(profiles)
	if err != nil {
		return domain.Failed(source, err)
	}

	// Marker last: its presence implies the other outputs are complete.
	outputs := c.Outputs(source)
	for i := len(c.writers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return domain.Failed(source, err)
		}
		if err := writeAtomic(c.writers[i], outputs[i], table); err != nil {
			return domain.Failed(source, err)
		}
	}

	o := domain.Classify(source, table.Len(), profiles.Missing)
	o.Outputs = outputs
	return o
}

// writeAtomic writes to a temporary sibling and renames it into place.
func writeAtomic(w TableWriter, path string, t *domain.Table) error {
	tmp := path + ".tmp"
	if err := w.Write(tmp, t); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// IsStructural reports whether err is a structural problem with the source
// rather than an I/O failure.
func IsStructural(err error) bool {
	var se *domain.StructuralError
	return errors.As(err, &se)
}
