package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/auth"
	"github.com/gpib-control/gpib-control-server/internal/config"
	"github.com/gpib-control/gpib-control-server/internal/gpib"
	"github.com/gpib-control/gpib-control-server/internal/models"
	"github.com/gpib-control/gpib-control-server/internal/monitor"
	"github.com/gpib-control/gpib-control-server/internal/storage"
	"github.com/gpib-control/gpib-control-server/internal/validation"
)

type contextKey string

const claimsKey contextKey = "claims"

// EventRecorder receives API audit rows for the event log
type EventRecorder interface {
	Enqueue(entry *models.EventLog)
}

// Option configures a RESTServer
type Option func(*RESTServer)

// WithMetrics instruments every request and exposes the metrics endpoint
func WithMetrics(m *monitor.Metrics) Option {
	return func(s *RESTServer) { s.metrics = m }
}

// WithEventRecorder records instrument changes made through the API
func WithEventRecorder(r EventRecorder) Option {
	return func(s *RESTServer) { s.events = r }
}

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	manager   *gpib.Manager
	auth      *auth.JWTManager
	validator *validation.Validator
	metrics   *monitor.Metrics
	events    EventRecorder
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, store storage.Store, manager *gpib.Manager, opts ...Option) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		manager:   manager,
		auth:      auth.NewJWTManager(&cfg.JWT, store),
		validator: validation.NewValidator(),
		router:    chi.NewRouter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/", s.HandleRoot)

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// Handler returns the root HTTP handler
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr

	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Parse Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the authenticated caller, if any
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
