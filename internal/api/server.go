// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/custobar-insights/internal/logging"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/service"
	"github.com/custobar-insights/internal/storage"
)

// Service interfaces for dependency injection and testing

// PipelineServiceInterface defines the interface for pipeline operations
type PipelineServiceInterface interface {
	Run(ctx context.Context, integrationID string) (*service.PipelineResult, error)
}

// MetricsServiceInterface defines the interface for metric recomputation
type MetricsServiceInterface interface {
	ComputeOverallMetrics(ctx context.Context, integrationID string) (*models.DailyMetrics, error)
	ComputeSegmentedMetrics(ctx context.Context, integrationID string) ([]*models.SegmentedMetrics, error)
}

// MetricsReaderInterface defines the interface for reading stored snapshots
type MetricsReaderInterface interface {
	ListDaily(ctx context.Context, integrationID string, from, to time.Time) ([]*models.DailyMetrics, error)
	ListSegmented(ctx context.Context, integrationID string, date time.Time) ([]*models.SegmentedMetrics, error)
}

// IntegrationStoreInterface defines the interface for integration management
type IntegrationStoreInterface interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id string) (*models.Integration, error)
	List(ctx context.Context) ([]*models.Integration, error)
	Delete(ctx context.Context, id string) error
}

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	pipelineService PipelineServiceInterface
	metricsService  MetricsServiceInterface
	metricsRepo     MetricsReaderInterface
	integrationRepo IntegrationStoreInterface
	cache           *storage.RedisCache
	db              *storage.PostgresDB
	config          *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsCacheTTL time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	pipelineService PipelineServiceInterface,
	metricsService MetricsServiceInterface,
	metricsRepo MetricsReaderInterface,
	integrationRepo IntegrationStoreInterface,
	cache *storage.RedisCache,
	db *storage.PostgresDB,
) *Server {
	s := &Server{
		router:          mux.NewRouter(),
		pipelineService: pipelineService,
		metricsService:  metricsService,
		metricsRepo:     metricsRepo,
		integrationRepo: integrationRepo,
		cache:           cache,
		db:              db,
		config:          config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Integration endpoints
	api.HandleFunc("/integrations", s.handleCreateIntegration).Methods("POST")
	api.HandleFunc("/integrations", s.handleListIntegrations).Methods("GET")
	api.HandleFunc("/integrations/{id}", s.handleGetIntegration).Methods("GET")
	api.HandleFunc("/integrations/{id}", s.handleDeleteIntegration).Methods("DELETE")

	// Pipeline endpoints
	api.HandleFunc("/integrations/{id}/sync", s.handleSync).Methods("POST")
	api.HandleFunc("/integrations/{id}/metrics/recompute", s.handleRecomputeMetrics).Methods("POST")

	// Metric read endpoints
	api.HandleFunc("/integrations/{id}/metrics", s.handleGetMetrics).Methods("GET")
	api.HandleFunc("/integrations/{id}/segmented-metrics", s.handleGetSegmentedMetrics).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, map[string]string{
		"status":  status,
		"service": "custobar-insights",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying router, used by tests to exercise handlers
// without a listening socket
func (s *Server) Router() *mux.Router {
	return s.router
}
