// Package middleware contains HTTP middleware for the service.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are composed as an ordered list on the router.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/stateless/internal/auth"
	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/handler"
	"github.com/DukeRupert/stateless/internal/metrics"
	"github.com/DukeRupert/stateless/internal/session"
	"github.com/DukeRupert/stateless/internal/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Stages
// =============================================================================

// Stage names the step of the auth filter that rejected a request. Stages
// appear in logs, metrics and traces, never in responses.
type Stage string

const (
	StageCookieLookup    Stage = "cookie_lookup"
	StageDecode          Stage = "decode"
	StageExpiryCheck     Stage = "expiry_check"
	StagePrincipalAttach Stage = "principal_attach"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// UserFinder loads the principal named by a token.
type UserFinder interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// AuthMiddleware enforces the auth cookie on protected routes.
type AuthMiddleware struct {
	users  UserFinder
	codec  *token.Codec
	logger *slog.Logger
	tracer trace.Tracer
}

const tracerName = "github.com/DukeRupert/stateless/internal/middleware"

// AuthOption configures an AuthMiddleware.
type AuthOption func(*AuthMiddleware)

// WithTracerProvider sets the provider for filter spans. A nil provider
// keeps the global one.
func WithTracerProvider(tp trace.TracerProvider) AuthOption {
	return func(m *AuthMiddleware) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
//
// Parameters:
// - users: Principal lookup by user id
// - codec: Token codec; its clock is used for the expiry check
// - logger: Structured logger for auth events
func NewAuthMiddleware(users UserFinder, codec *token.Codec, logger *slog.Logger, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		users:  users,
		codec:  codec,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// Authenticate Middleware
// =============================================================================

// Authenticate requires a valid auth cookie.
//
// Flow:
//
//	Request -> Authenticate -> Handler
//	           |
//	           +-> Read cookie          (missing -> 401)
//	           +-> Decrypt and parse    (invalid -> 401)
//	           +-> Check payload expiry (expired -> 401)
//	           +-> Load user            (unknown -> 401)
//	           +-> Put user in context, call next handler
//
// Rejected requests never reach next. The cookie's own Max-Age and Expires
// play no part; only the expiry sealed inside the token counts.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.tracer.Start(r.Context(), "auth.authenticate")
		defer span.End()

		user, stage, err := m.resolve(ctx, r)
		if err != nil {
			m.reject(w, r, span, stage, err)
			return
		}

		span.SetAttributes(attribute.Int64("auth.user_id", user.ID))
		metrics.AuthAcceptedTotal.Inc()

		next.ServeHTTP(w, r.WithContext(auth.WithUser(ctx, user)))
	})
}

// resolve runs the filter stages in order and returns the principal, or
// the stage that failed with its error.
func (m *AuthMiddleware) resolve(ctx context.Context, r *http.Request) (*domain.User, Stage, error) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil, StageCookieLookup, err
	}

	tok, err := m.codec.Decode(cookie.Value)
	if err != nil {
		return nil, StageDecode, err
	}

	if tok.IsExpired(m.codec.Now()) {
		return nil, StageExpiryCheck, domain.TokenExpired("AuthMiddleware.Authenticate")
	}

	user, err := m.users.GetByID(ctx, tok.UserID)
	if err != nil {
		return nil, StagePrincipalAttach, err
	}
	return user, "", nil
}

// reject logs the failing stage and answers with a bare 401. Store outages
// are logged at error level but still answered with 401 so that no stage is
// distinguishable from outside.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, span trace.Span, stage Stage, err error) {
	metrics.AuthRejectionsTotal.WithLabelValues(string(stage)).Inc()

	span.SetAttributes(attribute.String("auth.rejected_stage", string(stage)))
	span.SetStatus(codes.Error, string(stage))

	attrs := []any{
		"stage", stage,
		"error", err.Error(),
		"path", r.URL.Path,
		"method", r.Method,
	}

	switch {
	case stage == StageCookieLookup:
		m.logger.Debug("auth rejected", attrs...)
	case stage == StagePrincipalAttach && !errors.Is(err, domain.ErrUserNotFound):
		m.logger.Error("auth principal lookup failed", attrs...)
	default:
		m.logger.Info("auth rejected", attrs...)
	}

	handler.UnauthorizedResponse(w, r, m.logger)
}

// =============================================================================
// Compile-time checks
// =============================================================================

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).Authenticate
)
