package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up /api routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected when api.auth_required is set
	r.Group(func(r chi.Router) {
		if s.config.API.AuthRequired {
			r.Use(s.authMiddleware)
		}

		// Instruments
		r.Route("/instruments", func(r chi.Router) {
			r.Get("/", s.HandleListInstruments)
			r.Post("/", s.HandleCreateInstrument)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetInstrument)
				r.Put("/", s.HandleUpdateInstrument)
				r.Delete("/", s.HandleDeleteInstrument)

				// Session control
				r.Post("/connect", s.HandleConnectInstrument)
				r.Post("/disconnect", s.HandleDisconnectInstrument)
				r.Post("/measure", s.HandleMeasure)
				r.Get("/status", s.HandleInstrumentStatus)
				r.Post("/command", s.HandleSendCommand)
				r.Post("/query", s.HandleQuery)

				// History
				r.Get("/measurements", s.HandleListMeasurements)
			})
		})

		// Events
		r.Get("/events", s.HandleListEvents)
	})
}
