// Package api exposes the authentication service over REST.
package api

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/nvelasco/campusd/auth"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc          *auth.Service
	loginLimiter *rate.Limiter
	logger       *slog.Logger
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLoginRate overrides the global login rate limit. The default allows
// 10 login attempts per second with a burst of 20, across all clients;
// per-account throttling is handled by the auth service itself.
func WithLoginRate(r rate.Limit, burst int) Option {
	return func(a *API) {
		a.loginLimiter = rate.NewLimiter(r, burst)
	}
}

// New creates a new API instance.
func New(svc *auth.Service, opts ...Option) *API {
	a := &API{
		svc:          svc,
		loginLimiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/auth/register", a.Register)
	r.With(a.loginRateLimit).Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.Get("/auth/session", a.Session)

	r.With(a.RequireSession).Get("/me", a.Me)
	r.With(a.RequireSession).Post("/me/password", a.ChangePassword)

	return r
}
