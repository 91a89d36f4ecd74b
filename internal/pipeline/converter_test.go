package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/csvout"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/couchcryptid/argo-profile-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEssential = []string{"PRES", "TEMP", "PSAL", "LATITUDE", "LONGITUDE", "JULD"}

type memSource struct {
	domain.MapSource
	closed *bool
}

func (m memSource) Close() error {
	if m.closed != nil {
		*m.closed = true
	}
	return nil
}

func profileSource() domain.MapSource {
	return domain.MapSource{
		"PRES":      [][]float64{{10, 11}, {20, 21}, {30, 31}},
		"TEMP":      []float64{18.1, 17.2, 15.3},
		"PSAL":      []float64{35.1, 35.2, 35.3},
		"LATITUDE":  []float64{-10, -11},
		"LONGITUDE": []float64{150, 151},
		"JULD":      []float64{25000.5, 25010.5},
	}
}

func openerFor(src domain.MapSource, closed *bool) pipeline.Opener {
	return func(string) (pipeline.Source, error) {
		return memSource{MapSource: src, closed: closed}, nil
	}
}

// failingWriter fails every write.
type failingWriter struct{}

func (failingWriter) Extension() string { return ".parquet" }
func (failingWriter) Write(string, *domain.Table) error {
	return errors.New("disk full")
}

func TestConverter_OutputPaths(t *testing.T) {
	c := pipeline.NewConverter(nil, domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{failingWriter{}, csvout.NewWriter()}, "/out", slog.Default())

	assert.Equal(t, filepath.Join("/out", "D2902120_001.parquet"), c.Marker("/src/D2902120_001.nc"))
	assert.Equal(t, []string{
		filepath.Join("/out", "D2902120_001.parquet"),
		filepath.Join("/out", "D2902120_001.csv"),
	}, c.Outputs("/src/D2902120_001.nc"))
}

func TestConverter_Convert_WritesOutputs(t *testing.T) {
	out := t.TempDir()
	var closed bool
	c := pipeline.NewConverter(openerFor(profileSource(), &closed), domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{csvout.NewWriter()}, out, slog.Default())

	o := c.Convert(context.Background(), "/src/D2902120_001.nc")

	require.Equal(t, domain.StatusSuccess, o.Status, o.ErrorText())
	assert.Equal(t, 6, o.Rows)
	assert.True(t, closed, "source is closed after conversion")
	require.Len(t, o.Outputs, 1)

	b, err := os.ReadFile(o.Outputs[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Equal(t, "depth,temp,sal,lat,lon,time,float_id,source_file", lines[0])
	assert.Len(t, lines, 7)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestConverter_Convert_MissingVariableWarns(t *testing.T) {
	src := profileSource()
	delete(src, "PSAL")
	c := pipeline.NewConverter(openerFor(src, nil), domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{csvout.NewWriter()}, t.TempDir(), slog.Default())

	o := c.Convert(context.Background(), "/src/D2902120_002.nc")

	assert.Equal(t, domain.StatusWarning, o.Status)
	assert.Equal(t, []string{"PSAL"}, o.Missing)
	assert.Equal(t, 6, o.Rows)
}

func TestConverter_Convert_NoLevels(t *testing.T) {
	src := profileSource()
	delete(src, "PRES")
	c := pipeline.NewConverter(openerFor(src, nil), domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{csvout.NewWriter()}, t.TempDir(), slog.Default())

	o := c.Convert(context.Background(), "/src/D2902120_003.nc")

	assert.Equal(t, domain.StatusFailure, o.Status)
	assert.ErrorIs(t, o.Err, domain.ErrNoLevels)
	assert.True(t, pipeline.IsStructural(o.Err))
}

func TestConverter_Convert_OpenError(t *testing.T) {
	open := func(string) (pipeline.Source, error) { return nil, errors.New("not a netcdf file") }
	c := pipeline.NewConverter(open, domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{csvout.NewWriter()}, t.TempDir(), slog.Default())

	o := c.Convert(context.Background(), "/src/D2902120_004.nc")

	assert.Equal(t, domain.StatusFailure, o.Status)
	assert.Contains(t, o.ErrorText(), "open source: not a netcdf file")
	assert.False(t, pipeline.IsStructural(o.Err))
}

func TestConverter_Convert_WriteErrorSkipsMarker(t *testing.T) {
	out := t.TempDir()
	c := pipeline.NewConverter(openerFor(profileSource(), nil), domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{csvout.NewWriter(), failingWriter{}}, out, slog.Default())

	o := c.Convert(context.Background(), "/src/D2902120_005.nc")

	assert.Equal(t, domain.StatusFailure, o.Status)
	assert.Contains(t, o.ErrorText(), "disk full")
	_, err := os.Stat(c.Marker("/src/D2902120_005.nc"))
	assert.True(t, os.IsNotExist(err), "marker output is written last")
}

func TestConverter_Convert_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := pipeline.NewConverter(openerFor(profileSource(), nil), domain.NewLayout(testEssential, nil),
		[]pipeline.TableWriter{csvout.NewWriter()}, t.TempDir(), slog.Default())

	o := c.Convert(ctx, "/src/D2902120_006.nc")

	assert.ErrorIs(t, o.Err, context.Canceled)
}
