package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusworks/console-identity-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for identity use-cases.
// Keeping only the application dependency here preserves adapter boundaries.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers identity HTTP routes and the middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/code/send", handler.sendCode)
		r.Post("/signin/code", handler.signInCode)
		r.Post("/signin/password", handler.signInPassword)
		r.Post("/signin/oauth", handler.signInOAuth)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Get("/account", handler.getAccount)
			r.Patch("/account", handler.updateProfile)
			r.Post("/account/password", handler.changePassword)
			r.Get("/providers", handler.listProviders)
			r.Post("/providers/{provider}/bind", handler.bindProvider)
			r.Post("/providers/{provider}/unbind", handler.unbindProvider)
			r.Post("/providers/{provider}/change/verify-old", handler.changeVerifyOld)
			r.Post("/providers/{provider}/change/verify-new", handler.changeVerifyNew)
			r.Get("/regions", handler.listRegions)
			r.Get("/regions/{regionUID}/workspaces", handler.listWorkspaces)
			r.Post("/region-token", handler.regionToken)
		})
	})

	return r
}
