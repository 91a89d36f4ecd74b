package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/argo-profile-etl/internal/batch"
	"github.com/couchcryptid/argo-profile-etl/internal/observability"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	sourceDir string
	outputDir string
	logDir    string
}

func setupCLIEnv(t *testing.T, fixtures ...netcdf.Fixture) cliEnv {
	t.Helper()
	base := t.TempDir()
	env := cliEnv{
		sourceDir: filepath.Join(base, "argo_nc_files"),
		outputDir: filepath.Join(base, "argo_parquet"),
		logDir:    filepath.Join(base, "logs"),
	}
	require.NoError(t, os.MkdirAll(env.sourceDir, 0o755))
	for _, fx := range fixtures {
		_, err := fx.Write(env.sourceDir)
		require.NoError(t, err)
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SOURCE_DIR", env.sourceDir)
	t.Setenv("OUTPUT_DIR", env.outputDir)
	t.Setenv("LOG_DIR", env.logDir)
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("METRICS_ADDR", "")
	return env
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandFor(&app{newMetrics: observability.NewMetricsForTesting})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fixtures(n int) []netcdf.Fixture {
	fx := make([]netcdf.Fixture, n)
	for i := range fx {
		fx[i] = netcdf.Fixture{FloatID: "2902120", Cycle: i + 1, Profiles: 2, Levels: 5, Seed: uint64(i)}
	}
	return fx
}

func readJournal(t *testing.T, dir string) string {
	t.Helper()
	logs, err := filepath.Glob(filepath.Join(dir, "run_*.txt"))
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	var b strings.Builder
	for _, l := range logs {
		data, err := os.ReadFile(l)
		require.NoError(t, err)
		b.Write(data)
	}
	return b.String()
}

// lastSummary returns the summary block of the most recent run.
func lastSummary(journal string) string {
	i := strings.LastIndex(journal, "--- SUMMARY")
	if i < 0 {
		return ""
	}
	return journal[i:]
}

func outputModTimes(t *testing.T, dir string) map[string]time.Time {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	times := make(map[string]time.Time)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		require.NoError(t, err)
		times[e.Name()] = info.ModTime()
	}
	return times
}

func TestPlanCommand(t *testing.T) {
	setupCLIEnv(t, fixtures(5)...)

	out, err := execute(t, "plan", "--batches", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "5 files in 2 batches")
	assert.Contains(t, out, "D2902120_001.nc")
	assert.Contains(t, out, "D2902120_005.nc")
}

func TestPlanCommand_RejectsZeroBatches(t *testing.T) {
	setupCLIEnv(t)

	_, err := execute(t, "plan", "--batches", "0")
	require.Error(t, err)
}

func TestConvertCommand_ConvertsSkipsAndLoads(t *testing.T) {
	fx := fixtures(3)
	fx[2].Omit = []string{"PSAL"}
	env := setupCLIEnv(t, fx...)
	require.NoError(t, os.WriteFile(filepath.Join(env.sourceDir, "D2902999_001.nc"), nil, 0o600))

	out, err := execute(t, "convert", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent failures")

	for _, f := range fx {
		base := strings.TrimSuffix(f.FileName(), ".nc")
		for _, ext := range []string{".parquet", ".csv"} {
			info, err := os.Stat(filepath.Join(env.outputDir, base+ext))
			require.NoError(t, err, base+ext)
			assert.Positive(t, info.Size())
		}
	}

	journal := readJournal(t, env.logDir)
	assert.Contains(t, journal, "Processed D2902120_001.nc")
	assert.Contains(t, journal, "D2902120_003.nc missing: PSAL")
	assert.Contains(t, journal, "Failed D2902999_001.nc: empty file")
	assert.Contains(t, journal, "--- SUMMARY")

	before := outputModTimes(t, env.outputDir)
	require.Len(t, before, 6)

	_, err = execute(t, "convert")
	require.NoError(t, err)
	journal = readJournal(t, env.logDir)
	for _, f := range fx {
		assert.Contains(t, journal, "Skipped "+f.FileName()+": output exists")
	}

	// The converted files all count as successes without being rewritten;
	// the empty file fails again.
	summary := lastSummary(journal)
	assert.Contains(t, summary, "Total:    4\n")
	assert.Contains(t, summary, "Success:  3\n")
	assert.Contains(t, summary, "Warnings: 0\n")
	assert.Contains(t, summary, "Failures: 1\n")
	assert.Contains(t, summary, "Skipped:  3\n")
	assert.Contains(t, summary, "Rows:     0\n")
	assert.Equal(t, before, outputModTimes(t, env.outputDir))

	db := filepath.Join(t.TempDir(), "argo.db")
	out, err = execute(t, "load", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "from 3 files")
}

func TestConvertCommand_SelectsBatches(t *testing.T) {
	env := setupCLIEnv(t, fixtures(4)...)

	_, err := execute(t, "convert", "--batches", "2", "--batch", "2,x")
	require.NoError(t, err)

	outputs, err := filepath.Glob(filepath.Join(env.outputDir, "*.parquet"))
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Contains(t, readJournal(t, env.logDir), `batch "x": not a batch number`)
}

func TestConvertCommand_EmptySelection(t *testing.T) {
	setupCLIEnv(t, fixtures(2)...)

	_, err := execute(t, "convert", "--batch", "9")
	require.ErrorIs(t, err, batch.ErrEmptySelection)
}

func TestConvertCommand_OutputDirLocked(t *testing.T) {
	env := setupCLIEnv(t, fixtures(1)...)
	require.NoError(t, os.MkdirAll(env.outputDir, 0o755))

	lock := flock.New(filepath.Join(env.outputDir, lockFile))
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lock.Unlock() })

	_, err = execute(t, "convert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another convert run")
}

func TestConvertCommand_UnknownFormat(t *testing.T) {
	setupCLIEnv(t, fixtures(1)...)

	_, err := execute(t, "convert", "--formats", "xlsx")
	require.Error(t, err)
}
