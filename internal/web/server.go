// Package web exposes the dashboard API: check-in sessions, enrollment,
// identities, attendance and configuration.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/facemark/facemark/internal/checkin"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/liveness"
	"github.com/facemark/facemark/internal/web/handlers"
	"github.com/facemark/facemark/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server represents the web server.
type Server struct {
	config       *config.Config
	router       *chi.Mux
	httpServer   *http.Server
	manager      *checkin.Manager
	orchestrator *checkin.Orchestrator
	identities   database.IdentityWriter
	attendance   database.AttendanceReader
	faces        checkin.FaceDetector
	pattern      func() liveness.Pattern
}

// Options wires the server's collaborators.
type Options struct {
	Config       *config.Config
	Orchestrator *checkin.Orchestrator
	Identities   database.IdentityWriter
	Attendance   database.AttendanceReader
	Faces        checkin.FaceDetector
	Pattern      func() liveness.Pattern
}

// NewServer creates a new web server.
func NewServer(opts Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:       opts.Config,
		router:       r,
		manager:      checkin.NewManager(),
		orchestrator: opts.Orchestrator,
		identities:   opts.Identities,
		attendance:   opts.Attendance,
		faces:        opts.Faces,
		pattern:      opts.Pattern,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Config.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Manager returns the check-in job manager.
func (s *Server) Manager() *checkin.Manager {
	return s.manager
}

func (s *Server) setupRoutes() {
	sessionHandler := handlers.NewSessionHandler(s.manager, s.orchestrator, s.pattern)
	enrollHandler := handlers.NewEnrollHandler(s.faces, s.identities)
	identitiesHandler := handlers.NewIdentitiesHandler(s.identities)
	attendanceHandler := handlers.NewAttendanceHandler(s.attendance)
	configHandler := handlers.NewConfigHandler(
		s.config.Liveness.Thresholds,
		s.pattern(),
		s.config.Matching.TopK,
		s.config.Matching.Threshold,
	)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.Web.APIToken))

			// Check-in sessions
			r.Post("/session/start", sessionHandler.Start)
			r.Get("/session/{id}/result", sessionHandler.Result)
			r.Get("/session/{id}/events", sessionHandler.Events)
			r.Delete("/session/{id}", sessionHandler.Cancel)

			// Enrollment and identity registry
			r.Post("/enroll", enrollHandler.Enroll)
			r.Get("/identities", identitiesHandler.List)
			r.Get("/identities/{id}", identitiesHandler.Get)
			r.Delete("/identities/{id}", identitiesHandler.Delete)

			// Attendance log
			r.Get("/attendance", attendanceHandler.List)

			// Config
			r.Get("/config", configHandler.Get)
		})
	})
}
