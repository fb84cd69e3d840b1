package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/metrics"
	"github.com/JakeFAU/inc-submissions-harvester/internal/pipeline"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// RecentRuns exposes the in-memory run history.
type RecentRuns interface {
	Recent() []submission.RunRecord
}

// RunHistory reads the persistent run ledger.
type RunHistory interface {
	ListRuns(ctx context.Context, session string, limit int) ([]submission.RunRecord, error)
}

// SnapshotReader loads a written session snapshot.
type SnapshotReader interface {
	Read(ctx context.Context, session string) (submission.Snapshot, error)
}

// Trigger starts a session run in the background.
type Trigger interface {
	Trigger(ctx context.Context, session string) error
}

// Config tunes the server.
type Config struct {
	// APIKey guards the /v1 routes when set.
	APIKey         string
	RequestTimeout time.Duration
}

// Deps are the collaborators behind the routes. History and Ready are optional.
type Deps struct {
	Recent    RecentRuns
	History   RunHistory
	Snapshots SnapshotReader
	Trigger   Trigger
	// Ready reports downstream readiness for /readyz.
	Ready func(ctx context.Context) error
	// RunContext outlives requests and scopes triggered runs.
	RunContext context.Context
}

// Server wires HTTP handlers to the pipeline.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/runs", s.listRuns)
		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Get("/snapshot", s.getSnapshot)
			r.Post("/runs", s.triggerRun)
		})
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
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	if s.deps.Snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}
	snap, err := s.deps.Snapshots.Read(r.Context(), session)
	if err != nil {
		if errors.Is(err, submission.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		s.logger.Error("read snapshot failed", zap.String("session", session), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	if s.deps.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	if err := s.deps.Trigger.Trigger(s.deps.RunContext, session); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnknownSession):
			writeError(w, http.StatusNotFound, "session not configured")
		case errors.Is(err, pipeline.ErrRunInProgress):
			writeError(w, http.StatusConflict, "session run already in progress")
		default:
			s.logger.Error("trigger run failed", zap.String("session", session), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to trigger run")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session": session, "status": "accepted"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
