package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the agent API on the given chi router. Mutating
// endpoints go through limit when it is non-nil.
func MountRoutes(r chi.Router, h *Handlers, limit func(http.Handler) http.Handler) {
	r.Route("/api/agents", func(r chi.Router) {
		r.Get("/", h.GetAgents)
		r.Get("/watchdog", h.RunWatchdogQuery)

		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/watchdog", h.RunWatchdog)
			r.Post("/message", h.SendMessage)
			r.Post("/control", h.RunControl)
		})
	})
}
