// Package httpadapter serves health, progress, and metrics endpoints while a
// conversion run is active.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/run"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProgressSource provides the current run counters.
type ProgressSource interface {
	Snapshot() run.Snapshot
}

// Server exposes /healthz, /readyz, /progress, and /metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the HTTP server. progress may be nil, in which case
// /progress is not registered.
func NewServer(addr string, ready sharedobs.ReadinessChecker, progress ProgressSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	if progress != nil {
		mux.HandleFunc("GET /progress", progressHandler(progress))
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

type progressBody struct {
	RunID          string  `json:"run_id"`
	Total          int     `json:"total"`
	Done           int     `json:"done"`
	Success        int     `json:"success"`
	Warning        int     `json:"warning"`
	Failure        int     `json:"failure"`
	Skipped        int     `json:"skipped"`
	Rows           int64   `json:"rows"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Log            string  `json:"log"`
}

func progressHandler(src ProgressSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s := src.Snapshot()
		sharedobs.WriteJSON(w, http.StatusOK, progressBody{
			RunID:          s.RunID,
			Total:          s.Total,
			Done:           s.Done,
			Success:        s.Success,
			Warning:        s.Warning,
			Failure:        s.Failure,
			Skipped:        s.Skipped,
			Rows:           s.Rows,
			ElapsedSeconds: s.Elapsed.Seconds(),
			Log:            s.LogPath,
		})
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
