package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/session", func(r chi.Router) {
		r.Post("/", s.startSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/questions", s.getQuestions)
			r.Post("/answers", s.submitAnswers)
			r.Post("/cancel", s.cancelSession)
			r.Get("/events", s.sessionEvents)
		})
	})

	r.Get("/health", s.health)
}
