// Package api exposes the simulated sensors over a REST API. Asynchronous
// results are journaled and polled through the events endpoints.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/fpsim/session"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	sessions *session.Manager
	audit    *auditLogger
	alertFn  AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAlertFunc registers a callback for anomaly alerts raised from audit
// events.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(sessions *session.Manager, opts ...Option) *API {
	a := &API{sessions: sessions}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/sensors", a.ListSensors)
	r.Post("/tokens", a.MintToken)
	r.Post("/sessions", a.OpenSession)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		// Journals outlive their session, so these do not require it open.
		r.Get("/events", a.ListEvents)
		r.Get("/operations/{operationID}", a.GetOperation)

		r.Group(func(r chi.Router) {
			r.Use(a.SessionMiddleware)
			r.Delete("/", a.CloseSession)
			r.Post("/challenge", a.GenerateChallenge)
			r.Delete("/challenge/{challenge}", a.RevokeChallenge)
			r.Post("/enroll", a.Enroll)
			r.Post("/authenticate", a.Authenticate)
			r.Post("/detect-interaction", a.DetectInteraction)
			r.Post("/operations/{operationID}/cancel", a.CancelOperation)
			r.Get("/enrollments", a.EnumerateEnrollments)
			r.Delete("/enrollments", a.RemoveEnrollments)
			r.Get("/authenticator-id", a.GetAuthenticatorID)
			r.Post("/authenticator-id/invalidate", a.InvalidateAuthenticatorID)
			r.Post("/lockout/reset", a.ResetLockout)
		})
	})

	return r
}
