package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/careconnect/pairing-server/internal/config"
	"github.com/careconnect/pairing-server/internal/middleware"
	"github.com/careconnect/pairing-server/internal/service"
	"github.com/careconnect/pairing-server/internal/sse"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Auth         *service.AuthService
	Tokens       *service.TokenService
	Pairing      *service.PairingService
	Connections  *service.ConnectionService
	Workspaces   *service.WorkspaceService
	Patients     *service.PatientService
	Broker       *sse.Broker
	Limiter      middleware.Limiter
	IsProduction bool
	// Ping reports store health for /health. Optional.
	Ping func(ctx context.Context) error
}

func NewRouter(deps RouterDeps) http.Handler {
	authMiddleware := middleware.NewAuthMiddleware(deps.Auth)
	userRateLimit := middleware.NewUserRateLimitMiddleware(deps.Limiter, config.DefaultRateLimitPerMin)
	loginRateLimit := middleware.NewIPRateLimitMiddleware(
		deps.Limiter, config.LoginAttemptsPerWindow, config.LoginAttemptWindow, "login",
	)
	validateRateLimit := middleware.NewIPRateLimitMiddleware(
		deps.Limiter, config.TokenValidatePerMinute, config.RateLimitWindow, "validate",
	)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(deps.IsProduction)

	authHandler := NewAuthHandler(deps.Auth, loginRateLimit.Handler, authMiddleware.Handler)
	tokenHandler := NewTokenHandler(deps.Tokens, deps.Pairing, validateRateLimit.Handler)
	connectionHandler := NewConnectionHandler(deps.Connections, deps.Pairing)
	workspaceHandler := NewWorkspaceHandler(deps.Workspaces)
	patientHandler := NewPatientHandler(deps.Patients)
	eventsHandler := NewEventsHandler(deps.Broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders.Handler)

	r.Get("/health", healthHandler(deps.Ping))

	r.Route("/api", func(r chi.Router) {
		r.Use(bodyLimit.Handler)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/auth", authHandler.Routes())
		})

		// The event stream is long-lived and sits outside the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Get("/events", eventsHandler.ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Use(userRateLimit.Handler)
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Mount("/tokens", tokenHandler.Routes())
			r.Mount("/connections", connectionHandler.Routes())
			r.Mount("/workspaces", workspaceHandler.Routes())
			r.Mount("/patients", patientHandler.Routes())
		})
	})

	return r
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"status": "unavailable",
					"error":  "store unreachable",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	}
}
