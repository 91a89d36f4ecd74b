// Package csvout writes flattened profile tables as CSV and reads them back.
package csvout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/argo-profile-etl/internal/domain"
)

// Extension is the file extension of CSV outputs.
const Extension = ".csv"

// Writer encodes tables with a header row. Missing values are empty cells.
type Writer struct{}

// NewWriter creates a CSV table writer.
func NewWriter() *Writer { return &Writer{} }

// Extension implements pipeline.TableWriter.
func (w *Writer) Extension() string { return Extension }

// Write encodes t into a new file at path.
func (w *Writer) Write(path string, t *domain.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close csv file: %w", cerr)
		}
	}()
	return Encode(f, t)
}

// Encode writes t as CSV to out.
func Encode(out io.Writer, t *domain.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(t.Columns))
	for i := 0; i < t.Len(); i++ {
		for j, c := range t.Columns {
			rec[j] = cell(c, i)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func cell(c *domain.Column, i int) string {
	if c.IsText() {
		return c.Text[i]
	}
	v := c.Num[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Reader iterates over the rows of a CSV output.
type Reader struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

// Open opens the CSV output at path and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header %s: empty file", path)
		}
		return nil, fmt.Errorf("read csv header %s: %w", path, err)
	}
	r.FieldsPerRecord = len(header)
	return &Reader{f: f, r: r, header: header}, nil
}

// Header returns the column names.
func (r *Reader) Header() []string { return r.header }

// Next returns the next row, or io.EOF when there are no more.
func (r *Reader) Next() ([]string, error) {
	rec, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read csv row: %w", err)
	}
	return rec, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
