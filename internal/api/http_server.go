package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"subsync/internal/config"
	"subsync/internal/models"
	syncengine "subsync/internal/sync"

	"github.com/rs/zerolog"
)

// SyncController is the slice of the sync runner the admin API drives.
type SyncController interface {
	Status(ctx context.Context) (*models.SyncJobState, time.Time, error)
	TriggerNow(ctx context.Context) error
	Reset(ctx context.Context, immediate bool) error
}

// RunHistory reads recorded reconciliation ticks.
type RunHistory interface {
	GetRecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// ReportWriter renders run history to a report file.
type ReportWriter interface {
	ExportHistory(ctx context.Context, runs []models.SyncRun) (string, error)
}

// HTTPServer exposes operator controls over the reconciliation job and the
// provisioning endpoint.
type HTTPServer struct {
	cfg         config.APIConfig
	sync        SyncController
	history     RunHistory
	reporter    ReportWriter
	provisioner Provisioner
	entries     EntryCreator
	server      *http.Server
	auth        *HTTPAuth
	logger      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, sync SyncController, history RunHistory, reporter ReportWriter, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		sync:     sync,
		history:  history,
		reporter: reporter,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/provision", srv.handleProvision)
	mux.HandleFunc("/api/v1/sync/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync/run", srv.handleRun)
	mux.HandleFunc("/api/v1/sync/reset", srv.handleReset)
	mux.HandleFunc("/api/v1/sync/runs", srv.handleRuns)
	mux.HandleFunc("/api/v1/sync/report", srv.handleReport)
	mux.HandleFunc("/api/v1/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// WithProvisioning attaches the checkout pipeline and the entry store that
// back the provision endpoint. Without it the endpoint answers 404.
func (s *HTTPServer) WithProvisioning(p Provisioner, entries EntryCreator) *HTTPServer {
	s.provisioner = p
	s.entries = entries
	return s
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("admin API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state, lastRun, err := s.sync.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state,
		"last_run": lastRun,
	})
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.sync.TriggerNow(r.Context()); err != nil {
		if errors.Is(err, syncengine.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "sync job is already running or scheduled")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to trigger run")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	immediate := r.URL.Query().Get("immediate") == "1"
	if err := s.sync.Reset(r.Context(), immediate); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reset": true, "immediate": immediate})
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history is not available")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := s.history.GetRecentSyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil || s.reporter == nil {
		writeError(w, http.StatusNotFound, "report export is not available")
		return
	}

	runs, err := s.history.GetRecentSyncRuns(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}

	path, err := s.reporter.ExportHistory(r.Context(), runs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export report")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
