// Package server exposes the status of the watch loop over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osbits/obtmon/internal/engine"
	"github.com/osbits/obtmon/internal/storage"
)

// History is the read side of the run history.
type History interface {
	RecentCheckRuns(ctx context.Context, name string, limit int) ([]storage.CheckRun, error)
	RecentReporterRuns(ctx context.Context, name string, limit int) ([]storage.ReporterRun, error)
	LatestRun(ctx context.Context) (storage.Run, bool, error)
}

// App serves /healthz, /metrics and the history API. It observes runs to
// track the latest outcome.
type App struct {
	history History
	metrics http.Handler
	logger  *slog.Logger
	allow   *Allowlist

	mu   sync.RWMutex
	last *engine.Outcome
}

// New constructs an App. history and metrics may be nil, which disables the
// endpoints they back.
func New(history History, metrics http.Handler, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{history: history, metrics: metrics, logger: logger}
}

// Restrict limits every endpoint to the addresses in al.
func (a *App) Restrict(al *Allowlist) {
	a.allow = al
}

// ObserveRun records out as the latest run.
func (a *App) ObserveRun(_ context.Context, out engine.Outcome) error {
	a.mu.Lock()
	a.last = &out
	a.mu.Unlock()
	return nil
}

// Routes returns the HTTP handler tree.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if a.allow != nil {
		r.Use(a.allow.Middleware)
	}
	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/checks/{name}/runs", a.handleCheckRuns)
		r.Get("/reporters/{name}/runs", a.handleReporterRuns)
	})
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	a.logger.Info("status server stopped")
	return nil
}

const (
	statusOK      = "ok"
	statusFailing = "failing"
	statusSkipped = "skipped"
	statusUnknown = "unknown"
)

type healthResponse struct {
	Status     string     `json:"status"`
	RunID      string     `json:"run_id,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Failed     []string   `json:"failed,omitempty"`
}

// handleHealth reports the last observed run, falling back to the newest
// run in history after a restart.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	last := a.last
	a.mu.RUnlock()

	resp := healthResponse{Status: statusUnknown}
	code := http.StatusServiceUnavailable
	switch {
	case last != nil:
		finished := last.Finished
		resp.RunID = last.RunID
		resp.FinishedAt = &finished
		for _, res := range last.Failed {
			resp.Failed = append(resp.Failed, res.Spec.Name)
		}
		resp.Status, code = healthStatus(last.Skipped, last.Clean())
	case a.history != nil:
		run, ok, err := a.history.LatestRun(r.Context())
		if err != nil {
			a.logger.Error("failed to load latest run", "error", err)
			break
		}
		if !ok {
			break
		}
		finished := run.FinishedAt
		resp.RunID = run.RunID
		resp.FinishedAt = &finished
		resp.Status, code = healthStatus(run.Skipped, run.ExitCode == engine.ExitClean)
	}
	writeJSON(w, code, resp)
}

func healthStatus(skipped, clean bool) (string, int) {
	switch {
	case skipped:
		return statusSkipped, http.StatusOK
	case clean:
		return statusOK, http.StatusOK
	default:
		return statusFailing, http.StatusServiceUnavailable
	}
}

func (a *App) handleCheckRuns(w http.ResponseWriter, r *http.Request) {
	serveRuns(a, w, r, "check", a.historyCheckRuns)
}

func (a *App) handleReporterRuns(w http.ResponseWriter, r *http.Request) {
	serveRuns(a, w, r, "reporter", a.historyReporterRuns)
}

func (a *App) historyCheckRuns(ctx context.Context, name string, limit int) ([]storage.CheckRun, error) {
	return a.history.RecentCheckRuns(ctx, name, limit)
}

func (a *App) historyReporterRuns(ctx context.Context, name string, limit int) ([]storage.ReporterRun, error) {
	return a.history.RecentReporterRuns(ctx, name, limit)
}

// serveRuns answers a history query for the {name} in the route. No rows
// is a 404.
func serveRuns[T any](a *App, w http.ResponseWriter, r *http.Request, kind string, load func(context.Context, string, int) ([]T, error)) {
	if a.history == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	name := chi.URLParam(r, "name")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := load(r.Context(), name, limit)
	if err != nil {
		a.logger.Error("failed to load "+kind+" runs", kind, name, "error", err)
		http.Error(w, "failed to load "+kind+" runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(runs) == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
