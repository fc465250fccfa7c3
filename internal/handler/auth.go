// Package handler contains HTTP handlers.
//
// This file handles the login, logout and current-user endpoints. Login and
// logout are public; everything else is mounted behind the auth middleware.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/DukeRupert/stateless/internal/auth"
	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/metrics"
	"github.com/DukeRupert/stateless/internal/token"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
)

// LoginFailureBody is the fixed body of a rejected login.
const LoginFailureBody = "UNAUTHORIZED"

// =============================================================================
// Dependencies
// =============================================================================

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password, clientIP string) (*domain.User, error)
}

// LoginLimiter is told about login outcomes so failed attempts count
// against the client's rate limit.
type LoginLimiter interface {
	RecordFailedLogin(ip string)
	ResetLogin(ip string)
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	users        Authenticator
	codec        *token.Codec
	cookieMaxAge *time.Duration
	limiter      LoginLimiter
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
//
// cookieMaxAge may be nil, which issues session cookies. limiter may be nil.
func NewAuthHandler(
	users Authenticator,
	codec *token.Codec,
	cookieMaxAge *time.Duration,
	limiter LoginLimiter,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:        users,
		codec:        codec,
		cookieMaxAge: cookieMaxAge,
		limiter:      limiter,
		logger:       logger,
	}
}

// =============================================================================
// POST /login - Process Login
// =============================================================================

// loginForm holds the submitted credentials.
type loginForm struct {
	Username string
	Password string
}

// Validate implements validation.Validatable.
func (f loginForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, validation.Required, validation.Length(1, 255)),
		validation.Field(&f.Password, validation.Required, validation.Length(1, 1024)),
	)
}

// Login checks the submitted credentials and issues the auth cookie.
//
// On success the response is 200 with a Set-Cookie header and the user's
// primary authority as a plain text body. Any failure is 401 with the body
// "UNAUTHORIZED" and no cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)

	if err := r.ParseForm(); err != nil {
		h.logger.Info("failed to parse login form", "error", err, "ip", ip)
		h.loginFailure(w, ip)
		return
	}

	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := form.Validate(); err != nil {
		h.logger.Debug("login form invalid", "error", err, "ip", ip)
		h.loginFailure(w, ip)
		return
	}

	user, err := h.users.Authenticate(r.Context(), form.Username, form.Password, ip)
	if err != nil {
		if domain.ErrorCode(err) == domain.EUNAUTHORIZED {
			h.logger.Info("login rejected", "ip", ip)
			h.loginFailure(w, ip)
			return
		}
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	cookie, err := h.codec.Encode(user.ID, h.cookieMaxAge)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	if h.limiter != nil {
		h.limiter.ResetLogin(ip)
	}
	metrics.TokensIssuedTotal.Inc()

	h.logger.Info("user logged in", "user_id", user.ID, "username", user.Username, "ip", ip)

	w.Header().Add("Set-Cookie", cookie.Header())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(user.PrimaryAuthority()))
}

// loginFailure writes the fixed 401 response for a rejected login.
func (h *AuthHandler) loginFailure(w http.ResponseWriter, ip string) {
	if h.limiter != nil {
		h.limiter.RecordFailedLogin(ip)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(LoginFailureBody))
}

// =============================================================================
// POST /logout - Process Logout
// =============================================================================

// Logout tells the client to delete the auth cookie.
//
// There is no server-side session to invalidate: a copy of the old cookie
// stays valid until its embedded expiry.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Set-Cookie", h.codec.Expire().Header())
	w.WriteHeader(http.StatusOK)

	h.logger.Debug("logout", "ip", ClientIP(r))
}

// =============================================================================
// GET /api/me - Current Principal
// =============================================================================

// MeResponse is the JSON view of the authenticated principal.
type MeResponse struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// Me returns the principal attached by the auth middleware.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		// Only reachable if the route was mounted without the middleware.
		h.logger.Error("Me called without user in context")
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	authorities := user.Authorities
	if authorities == nil {
		authorities = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(MeResponse{
		ID:          user.ID,
		Username:    user.Username,
		Authorities: authorities,
	})
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the public auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/logout", h.Logout)
}

// RegisterProtectedRoutes registers routes that need an authenticated user.
// The caller is responsible for mounting them behind the auth middleware.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/api/me", h.Me)
}

// =============================================================================
// Helpers
// =============================================================================

// ClientIP returns the host part of RemoteAddr. Proxy headers are resolved
// earlier by the RealIP middleware.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
