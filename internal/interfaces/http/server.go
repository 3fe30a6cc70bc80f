// Package http exposes the expense approval services over a JSON API.
// Handlers only translate requests; authorization and state rules live in the services.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Version:      "dev",
	}
}

// Services groups the application services served over HTTP
type Services struct {
	Companies service.CompanyService
	Expenses  service.ExpenseService
	Workflows service.WorkflowService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(loggingMiddleware(s.logger))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.config.Version, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1")

	// Registration is the only unauthenticated operation
	api.POST("/companies", h.CreateCompany)

	authed := api.Group("")
	authed.Use(identityMiddleware(s.services.Companies.GetEmployee))
	{
		authed.GET("/employees", requireRole(entity.RoleAdmin, entity.RoleManager), h.ListEmployees)
		authed.POST("/employees", requireRole(entity.RoleAdmin), h.CreateEmployee)
		authed.PUT("/employees/:id", requireRole(entity.RoleAdmin), h.UpdateEmployee)

		authed.POST("/expenses", h.SubmitExpense)
		authed.GET("/expenses/my", h.ListMyExpenses)
		authed.GET("/expenses/export", requireRole(entity.RoleAdmin), h.ExportExpenses)
		authed.GET("/expenses/:id", h.GetExpense)
		authed.GET("/expenses/:id/approvals", h.ExpenseApprovals)
		authed.POST("/expenses/:id/override", requireRole(entity.RoleAdmin), h.OverrideExpense)

		authed.GET("/approvals/pending", h.PendingApprovals)
		authed.POST("/approvals/:id/approve", h.Approve)
		authed.POST("/approvals/:id/reject", h.Reject)

		authed.GET("/workflows", requireRole(entity.RoleAdmin), h.GetWorkflow)
		authed.PUT("/workflows", requireRole(entity.RoleAdmin), h.SetWorkflow)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
