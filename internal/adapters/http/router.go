package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/sessionauth/internal/application"
)

// ReadinessCheck reports whether backing dependencies can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler is the HTTP adapter entrypoint for auth use-cases.
type Handler struct {
	service *application.Service
	ready   ReadinessCheck
}

// NewHandler constructs an HTTP handler bound to the application service.
// A nil ready check reports the service as always ready.
func NewHandler(service *application.Service, ready ReadinessCheck) *Handler {
	return &Handler{service: service, ready: ready}
}

// NewRouter registers the public API routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.healthz)

		r.Post("/Auth/token", handler.login)
		r.Post("/Auth/refresh", handler.refresh)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/User/register", handler.register)
			r.Put("/User/change-password", handler.changePassword)
			r.Delete("/User/delete-user", handler.deleteUser)
			r.Get("/User/me", handler.me)
		})
	})

	return r
}
