// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gildigital/aijobapply/internal/dedup"
	"github.com/gildigital/aijobapply/internal/discovery"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/queue"
	"github.com/gildigital/aijobapply/internal/storage"
)

// Service interfaces for dependency injection and testing

// QueueServiceInterface defines the interface for queue service operations.
type QueueServiceInterface interface {
	Enqueue(ctx context.Context, input *queue.EnqueueInput) (int64, error)
	GetStatus(ctx context.Context, queueID int64) (*queue.StatusResult, error)
	HandleCallback(ctx context.Context, cb *queue.CallbackInput) (bool, error)
	GetStats(ctx context.Context, userID int64) (*queue.Stats, error)
}

// DedupServiceInterface defines the interface for deduplication runs.
type DedupServiceInterface interface {
	Run(ctx context.Context, userID int64) (*dedup.Result, error)
}

// DiscoveryServiceInterface defines the interface for discovery operations.
type DiscoveryServiceInterface interface {
	Discover(ctx context.Context, userID int64, query string) (*discovery.DiscoverResult, error)
}

// LinkReaderInterface defines the read surface for job links.
type LinkReaderInterface interface {
	ListByUser(ctx context.Context, userID int64) ([]*models.JobLink, error)
}

// ApplicationReaderInterface defines the read surface for permanent
// application records.
type ApplicationReaderInterface interface {
	GetByID(ctx context.Context, id int64) (*models.Application, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Application, error)
	CountToday(ctx context.Context, userID int64, windowStart time.Time) (int, error)
}

// EventReaderInterface defines the read surface for submission history.
type EventReaderInterface interface {
	RecentForUser(ctx context.Context, userID int64, limit int) ([]*storage.SubmissionEvent, error)
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	queueService     QueueServiceInterface
	dedupService     DedupServiceInterface
	discoveryService DiscoveryServiceInterface
	links            LinkReaderInterface
	applications     ApplicationReaderInterface
	events           EventReaderInterface
	config           *ServerConfig
	logger           *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
	// CallbackSecret authenticates worker callbacks. Callbacks with a
	// different secret are rejected without touching queue state.
	CallbackSecret string
}

// NewServer creates a new API server instance. events may be nil when no
// audit store is configured.
func NewServer(
	config *ServerConfig,
	queueService QueueServiceInterface,
	dedupService DedupServiceInterface,
	discoveryService DiscoveryServiceInterface,
	links LinkReaderInterface,
	applications ApplicationReaderInterface,
	events EventReaderInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		queueService:     queueService,
		dedupService:     dedupService,
		discoveryService: discoveryService,
		links:            links,
		applications:     applications,
		events:           events,
		config:           config,
		logger:           logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes(rateLimiter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(rateLimiter *RateLimiter) {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Worker callback endpoint. Registered on the root router, ahead of the
	// rate-limited /api subrouter: the queue relies on callbacks to reach
	// terminal states, so a throttled delivery would strand an entry in
	// processing. The shared secret is the gate here, not the limiter.
	s.router.HandleFunc("/api/worker/update-job-status", s.handleWorkerCallback).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(rateLimiter))

	// Queue endpoints
	api.HandleFunc("/queue", s.handleEnqueue).Methods("POST")
	api.HandleFunc("/queue/{id}", s.handleGetStatus).Methods("GET")

	// Application record endpoints
	api.HandleFunc("/applications/{id}", s.handleGetApplication).Methods("GET")

	// User endpoints
	api.HandleFunc("/users/{id}/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/users/{id}/links", s.handleListLinks).Methods("GET")
	api.HandleFunc("/users/{id}/applications", s.handleListApplications).Methods("GET")
	api.HandleFunc("/users/{id}/events", s.handleListEvents).Methods("GET")
	api.HandleFunc("/users/{id}/discover", s.handleDiscover).Methods("POST")
	api.HandleFunc("/users/{id}/dedup", s.handleDedup).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "aijobapply",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
