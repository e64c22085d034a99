// Package httpapi serves the admin HTTP surface: health, rules, stored
// mail, the action log and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailrules/internal/metrics"
	"mailrules/internal/model"
	"mailrules/internal/processor"
	"mailrules/internal/storage"
)

const (
	defaultEmailLimit = 50
	maxEmailLimit     = 1000
)

// RuleStore is the rule set exposed over HTTP.
type RuleStore interface {
	Reload() int
	Summary() model.Summary
}

// Runner starts a processing run.
type Runner interface {
	ProcessInBatches(ctx context.Context) (processor.Stats, error)
}

// Server is the admin HTTP handler.
type Server struct {
	store  storage.Storage
	rules  RuleStore
	runner Runner
	log    *slog.Logger
	router *chi.Mux
}

// New creates a Server. runner may be nil, which disables POST /process.
func New(store storage.Storage, rules RuleStore, runner Runner, log *slog.Logger) *Server {
	s := &Server{
		store:  store,
		rules:  rules,
		runner: runner,
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", s.handleRules)
		r.Post("/reload", s.handleReload)
	})
	r.Route("/emails", func(r chi.Router) {
		r.Get("/", s.handleEmails)
		r.Delete("/", s.handleClearEmails)
		r.Delete("/{emailID}", s.handleDeleteEmail)
	})
	r.Get("/runs/{runID}/actions", s.handleActions)
	r.Post("/process", s.handleProcess)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("admin http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin http shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountEmails(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"emails": n,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.rules.Summary())
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	n := s.rules.Reload()
	metrics.RulesLoaded.Set(float64(n))
	s.log.Info("rules reloaded", "count", n, "via", "http")
	respondJSON(w, http.StatusOK, map[string]int{"loaded": n})
}

// handleEmails lists stored mail, newest first. The from, to, subject,
// message, label and is_read query parameters narrow the result.
func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultEmailLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxEmailLimit)
	}

	c := storage.SearchCriteria{
		From:    q.Get("from"),
		To:      q.Get("to"),
		Subject: q.Get("subject"),
		Message: q.Get("message"),
		Label:   q.Get("label"),
	}
	if raw := q.Get("is_read"); raw != "" {
		read, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid is_read %q", raw))
			return
		}
		c.IsRead = &read
	}

	var (
		emails []model.Email
		err    error
	)
	if c == (storage.SearchCriteria{}) {
		emails, err = s.store.ListEmails(r.Context(), limit)
	} else {
		emails, err = s.store.SearchEmails(r.Context(), c, limit)
	}
	if err != nil {
		s.log.Error("list emails", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list emails")
		return
	}
	if emails == nil {
		emails = []model.Email{}
	}
	respondJSON(w, http.StatusOK, emails)
}

func (s *Server) handleDeleteEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "emailID")
	err := s.store.DeleteEmail(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, fmt.Sprintf("email %q not found", id))
	case err != nil:
		s.log.Error("delete email", "email_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete email")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleClearEmails(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearEmails(r.Context()); err != nil {
		s.log.Error("clear emails", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to clear emails")
		return
	}
	s.log.Info("stored emails cleared", "via", "http")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	entries, err := s.store.ListActions(r.Context(), runID)
	if err != nil {
		s.log.Error("list actions", "run_id", runID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}
	if len(entries) == 0 {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no actions for run %q", runID))
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "processing is not available")
		return
	}
	stats, err := s.runner.ProcessInBatches(r.Context())
	switch {
	case errors.Is(err, processor.ErrRunInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error("process via http", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, stats)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
