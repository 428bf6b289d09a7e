package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pitchside/tacticsroom/internal/delivery/ws"
)

// NewRouter wires the engine's HTTP and WebSocket surfaces onto one mux.
// Everything except the health check sits behind the auth middleware.
func NewRouter(h *CollabHandler, hub *ws.Hub, auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HealthCheck)

	r.Route("/api/v1/collab", func(r chi.Router) {
		r.Use(auth)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.StartCollaboration)
			r.Get("/", h.GetActiveSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Delete("/", h.EndCollaboration)
				r.Post("/updates", h.SubmitUpdate)
				r.Post("/conflicts/{conflictID}/resolve", h.ResolveConflict)
				r.Put("/participants", h.UpdateParticipantPermission)
			})
		})
	})

	r.With(auth).Get("/ws/sessions/{sessionID}", hub.HandleWS)

	return r
}
