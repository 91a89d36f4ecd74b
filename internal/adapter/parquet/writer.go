// Package parquet writes flattened profile tables as Parquet files.
package parquet

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Extension is the file extension of Parquet outputs.
const Extension = ".parquet"

// Writer encodes tables with one OPTIONAL column per table column: DOUBLE for
// numbers and UTF8 for text. Missing values are written as nulls.
type Writer struct {
	parallelism int64
}

// NewWriter creates a Parquet table writer.
func NewWriter() *Writer {
	return &Writer{parallelism: 1}
}

// Extension implements pipeline.TableWriter.
func (w *Writer) Extension() string { return Extension }

// Write encodes t into a new file at path.
func (w *Writer) Write(path string, t *domain.Table) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close parquet file: %w", cerr)
		}
	}()

	pw, err := writer.NewJSONWriter(Schema(t), fw, w.parallelism)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := 0; i < t.Len(); i++ {
		rec, err := record(t, i)
		if err != nil {
			return err
		}
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return nil
}

type field struct {
	Tag string `json:"Tag"`
}

type schema struct {
	Tag    string  `json:"Tag"`
	Fields []field `json:"Fields"`
}

// Schema returns the JSON schema definition for t's columns.
func Schema(t *domain.Table) string {
	s := schema{Tag: "name=argo_profile, repetitiontype=REQUIRED"}
	for _, c := range t.Columns {
		typ := "type=DOUBLE"
		if c.IsText() {
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		s.Fields = append(s.Fields, field{
			Tag: fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", sanitize(c.Name), typ),
		})
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func record(t *domain.Table, i int) (string, error) {
	rec := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		name := sanitize(c.Name)
		if c.IsText() {
			if c.Text[i] == "" {
				rec[name] = nil
			} else {
				rec[name] = c.Text[i]
			}
			continue
		}
		v := c.Num[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			rec[name] = nil
		} else {
			rec[name] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode parquet row %d: %w", i, err)
	}
	return string(b), nil
}

// sanitize keeps column names to characters the schema tag syntax accepts.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
