package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the HTTP surface: broadcast initiation/status, single
// notification enqueue, and the dead letter operator endpoints.
func NewRouter(broadcasts *BroadcastHandler, notifications *NotificationHandler, deadLetters *DeadLetterHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/health", HealthHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/broadcasts", func(r chi.Router) {
			r.Post("/", broadcasts.Initiate)
			r.Get("/{id}", broadcasts.Get)
			r.Get("/{id}/failures", broadcasts.Failures)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", notifications.Enqueue)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", deadLetters.List)
			r.Get("/stats", deadLetters.Stats)
			r.Post("/retry-all", deadLetters.RetryAll)
			r.Post("/{id}/retry", deadLetters.Retry)
			r.Post("/{id}/processed", deadLetters.MarkProcessed)
		})
	})

	return r
}
