// Package server assembles the HTTP router.
//
// Every request passes the same ordered middleware list. Public routes
// (health, metrics, login, logout) sit outside the auth filter; everything
// else, including unknown paths, is mounted behind it.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/stateless/internal/handler"
	"github.com/DukeRupert/stateless/internal/metrics"
	"github.com/DukeRupert/stateless/internal/middleware"
	"github.com/DukeRupert/stateless/internal/service"
	"github.com/DukeRupert/stateless/internal/token"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Config holds what the router needs from the environment.
type Config struct {
	CookieMaxAge    *time.Duration
	SecureCookie    bool
	LoginRateLimit  int
	LoginRateWindow time.Duration
	MetricsUsername string
	MetricsPassword string
	// TracerProvider receives auth filter spans. Nil uses the global provider.
	TracerProvider  trace.TracerProvider
}

// Server owns the router and the long-lived pieces behind it.
type Server struct {
	router       chi.Router
	loginLimiter *middleware.LoginRateLimiter
	logger       *slog.Logger
}

// New wires handlers and middleware into a router.
func New(cfg Config, users service.UserService, codec *token.Codec, logger *slog.Logger) *Server {
	loginLimiter := middleware.NewLoginRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, logger)

	authMw := middleware.NewAuthMiddleware(users, codec, logger, middleware.WithTracerProvider(cfg.TracerProvider))
	authHandler := handler.NewAuthHandler(users, codec, cfg.CookieMaxAge, loginLimiter, logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuth.Enabled() {
		logger.Warn("metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}

	r := chi.NewRouter()

	// Ordered filter list, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewRequestLoggingMiddleware(logger).Handler)
	r.Use(middleware.NewSecurityHeadersMiddleware(cfg.SecureCookie).Handler)
	r.Use(metrics.Middleware)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.With(metricsAuth.Handler).Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(loginLimiter.Limit)
		r.Post("/login", authHandler.Login)
	})
	r.Post("/logout", authHandler.Logout)
	r.Get("/logout", authHandler.Logout)

	// Everything else requires the auth cookie.
	r.Group(func(r chi.Router) {
		r.Use(authMw.Authenticate)

		authHandler.RegisterProtectedRoutes(r)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			handler.NotFoundResponse(w, r, logger)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		})
	})

	return &Server{
		router:       r,
		loginLimiter: loginLimiter,
		logger:       logger,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.loginLimiter.Close()
}
