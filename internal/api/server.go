package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/annotate"
	"github.com/JakeFAU/matomo-bridge/internal/bridge"
	"github.com/JakeFAU/matomo-bridge/internal/config"
	"github.com/JakeFAU/matomo-bridge/internal/identity"
	"github.com/JakeFAU/matomo-bridge/internal/metrics"
	"github.com/JakeFAU/matomo-bridge/internal/reqscope"
	"github.com/JakeFAU/matomo-bridge/internal/settings"
	"github.com/JakeFAU/matomo-bridge/internal/views"
)

const maxAnnotateBody = 1 << 20

// IDGenerator creates request ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sessions records logins and logouts in the visitor's session cookie.
type Sessions interface {
	MarkLogin(w http.ResponseWriter, r *http.Request, u identity.User) error
	Logout(w http.ResponseWriter, r *http.Request) error
}

// Deps carries the collaborators served by the router. Upstream is the
// proxied site; without it unknown paths return 404. Sessions is set only in
// session identity mode.
type Deps struct {
	Bridge   *bridge.Bridge
	Settings *settings.Handler
	Views    *views.Refresher
	Sessions Sessions
	Upstream http.Handler
	Pinger   Pinger
	IDs      IDGenerator
}

// Server wires HTTP handlers to the tracking pipeline and stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(deps.IDs))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(reqscope.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout()))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/annotate", s.annotate)
		r.Get("/views", s.viewCounts)
	})

	if deps.Settings != nil || deps.Sessions != nil {
		r.Route("/admin", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			if deps.Settings != nil {
				r.Get("/settings", deps.Settings.Show)
				r.Post("/settings", deps.Settings.Save)
			}
			if deps.Sessions != nil {
				r.Post("/session/login", s.sessionLogin)
				r.Post("/session/logout", s.sessionLogout)
			}
		})
	}

	site := deps.Upstream
	if site == nil {
		site = http.NotFoundHandler()
	}
	if deps.Bridge != nil {
		site = deps.Bridge.Middleware(site)
	}
	r.Handle("/*", site)

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
	if s.deps.Pinger != nil {
		if err := s.deps.Pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type annotateRequest struct {
	Content string `json:"content"`
	Name    string `json:"name"`
}

type annotateResponse struct {
	Content string `json:"content"`
}

func (s *Server) annotate(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnnotateBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	content := annotate.Fragment(req.Content, req.Name)
	if content != req.Content {
		metrics.ObserveAnnotation("api", 1)
	}
	writeJSON(w, http.StatusOK, annotateResponse{Content: content})
}

func (s *Server) viewCounts(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	counts, err := s.deps.Views.Get(r.Context(), pageURL)
	if errors.Is(err, views.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no view counts for url")
		return
	}
	if err != nil {
		s.logger.Error("view counts lookup failed", zap.String("url", pageURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "view counts unavailable")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type sessionRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// sessionLogin stores the user in the session cookie; the next tracked page
// view for that cookie sends the login event first.
func (s *Server) sessionLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnnotateBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u := identity.User{ID: strings.TrimSpace(req.ID), Email: strings.TrimSpace(req.Email)}
	if u.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}
	if err := s.deps.Sessions.MarkLogin(w, r, u); err != nil {
		s.logger.Error("session login failed", zap.String("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_in"})
}

func (s *Server) sessionLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Logout(w, r); err != nil {
		s.logger.Error("session logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(ids IDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := ""
			if ids != nil {
				reqID, _ = ids.NewID()
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

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
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
