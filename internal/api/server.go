package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/metrics"
	"github.com/JakeFAU/board-collector/internal/scheduler"
)

const (
	requestTimeout = 30 * time.Second
	readyTimeout   = 3 * time.Second
	queueFullRetry = "5"
)

// SourceController is the scheduler surface the API drives.
type SourceController interface {
	Sources() []scheduler.Status
	Trigger(name string) error
}

// Check reports whether a downstream dependency is usable.
type Check func(ctx context.Context) error

// Options configures optional Server behavior.
type Options struct {
	// APIKey, when set, is required on every /v1 route.
	APIKey string
	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]Check
}

// Server wires HTTP handlers to the scheduler and run history.
type Server struct {
	router  chi.Router
	sources SourceController
	runs    collector.RunRecorder
	checks  map[string]Check
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sources SourceController, runs collector.RunRecorder, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sources: sources,
		runs:    runs,
		checks:  opts.Checks,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Get("/sources", s.listSources)
		r.Post("/sources/{name}/trigger", s.triggerSource)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type sourceView struct {
	scheduler.Status
	LastRun *collector.RunRecord `json:"last_run,omitempty"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	statuses := s.sources.Sources()
	out := make([]sourceView, 0, len(statuses))
	for _, st := range statuses {
		view := sourceView{Status: st}
		if s.runs != nil {
			run, ok, err := s.runs.LastRun(r.Context(), st.Name)
			if err != nil {
				s.logger.Error("load last run failed", zap.String("source", st.Name), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to load run history")
				return
			}
			if ok {
				view.LastRun = &run
			}
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) triggerSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.sources.Trigger(name)
	switch {
	case err == nil:
		s.logger.Info("manual trigger queued", zap.String("source", name))
		writeJSON(w, http.StatusAccepted, map[string]string{"source": name, "status": "queued"})
	case errors.Is(err, scheduler.ErrUnknownSource):
		writeError(w, http.StatusNotFound, "source not scheduled")
	case errors.Is(err, scheduler.ErrQueueFull):
		w.Header().Set("Retry-After", queueFullRetry)
		writeError(w, http.StatusServiceUnavailable, "trigger queue full")
	default:
		s.logger.Error("manual trigger failed", zap.String("source", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
