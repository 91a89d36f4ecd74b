package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/argo-profile-etl/internal/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockProgress struct {
	snap run.Snapshot
}

func (m *mockProgress) Snapshot() run.Snapshot { return m.snap }

func newTestServer(readyErr error) *httpadapter.Server {
	progress := &mockProgress{snap: run.Snapshot{
		RunID:   "ab12cd34",
		LogPath: "logs/run_20240426_151000.txt",
		Elapsed: 90 * time.Second,
		Total:   10,
		Done:    4,
		Success: 2,
		Warning: 1,
		Failure: 1,
		Skipped: 1,
		Rows:    1234,
	}}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, progress, slog.Default())
}

func get(t *testing.T, srv http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	rec := get(t, newTestServer(nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, newTestServer(fmt.Errorf("no file has been processed yet")), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no file has been processed yet", body["error"])
}

func TestProgress(t *testing.T) {
	rec := get(t, newTestServer(nil), "/progress")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"run_id": "ab12cd34",
		"total": 10,
		"done": 4,
		"success": 2,
		"warning": 1,
		"failure": 1,
		"skipped": 1,
		"rows": 1234,
		"elapsed_seconds": 90,
		"log": "logs/run_20240426_151000.txt"
	}`, rec.Body.String())
}

func TestProgressNotRegisteredWithoutSource(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, slog.Default())
	rec := get(t, srv, "/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
