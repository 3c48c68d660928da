package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/apperr"
	"github.com/JakeFAU/clew-freshness/internal/catalog"
	"github.com/JakeFAU/clew-freshness/internal/config"
	"github.com/JakeFAU/clew-freshness/internal/curator"
	"github.com/JakeFAU/clew-freshness/internal/metrics"
)

const defaultRequestTimeout = 60 * time.Second

// Gatherer serves active resources at request time.
type Gatherer interface {
	Gather(ctx context.Context, domain string, verify bool) ([]catalog.Resource, error)
	Resource(ctx context.Context, domain, id string) (catalog.Resource, error)
}

// CuratorRunner executes one curator job.
type CuratorRunner interface {
	Execute(ctx context.Context) curator.Result
}

// RunLister lists recent curator results.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]curator.Result, error)
}

// Deps are the collaborators behind the routes. Curator, Runs and Ready may
// be nil; the related routes then report 503 or always-ready.
type Deps struct {
	Scout   Gatherer
	Curator CuratorRunner
	Runs    RunLister
	Ready   func(ctx context.Context) error
	Config  config.Config
	Logger  *zap.Logger
}

// Server wires HTTP handlers to the scout and curator.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
	runs   *curatorHandler
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger}
	s.runs = newCuratorHandler(deps.Curator, deps.Runs, logger)

	timeout := deps.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if deps.Config.Auth.Enabled {
			r.Use(apiKeyMiddleware(deps.Config.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Get("/resources", s.listResources)
			r.Get("/resources/{id}", s.getResource)
			r.Get("/curator/runs", s.runs.list)
		})
		// Accepted runs continue in the background under curator.job_timeout.
		r.Post("/curator/runs", s.runs.trigger)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown waits for a background curator run to finish, cancelling it if
// ctx expires first. Call it after the http.Server has stopped accepting
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.runs.shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	RetryAllowed bool   `json:"retry_allowed"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) // client gone; nothing left to do
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError renders a classified error and logs its technical side.
func writeAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	appErr := apperr.From(err)
	fields := []zap.Field{
		zap.String("kind", string(appErr.Kind)),
		zap.Int("status", appErr.HTTPStatus),
		zap.Error(err),
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Info("request rejected", fields...)
	}
	writeJSON(w, appErr.HTTPStatus, errorResponse{
		Error:        string(appErr.Kind),
		Message:      appErr.UserMessage,
		RetryAllowed: appErr.RetryAllowed,
	})
}
