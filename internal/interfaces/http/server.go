// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/tasksync/internal/application/port"
	"github.com/garyjia/tasksync/internal/domain/entity"
	"github.com/garyjia/tasksync/pkg/translator"
)

// MemberHeader names the acting member on every request
const MemberHeader = "X-Member-ID"

const (
	actorKey = "actor"
	langKey  = "lang"
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
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Deps are the collaborators the adapter calls into
type Deps struct {
	Tasks        TaskService
	Sync         Syncer
	Connectivity Connectivity
	Members      MemberDirectory
	Exporter     HistoryExporter
	Translator   Localizer
	IDs          port.IDGenerator
	Location     *time.Location
	Health       func(ctx context.Context) interface{}
	Logger       Logger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	members    MemberDirectory
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Deps) *Server {
	// Set gin mode based on environment
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(deps),
		members:  deps.Members,
		logger:   deps.Logger,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(s.loggingMiddleware())

	s.router.Use(LanguageMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		// Log request details
		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"member_id", c.GetHeader(MemberHeader),
		)
	}
}

// LanguageMiddleware stores the Accept-Language header for message rendering
func LanguageMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := c.GetHeader("Accept-Language")
		if lang == "" {
			lang = translator.LanguageEn
		}
		c.Set(langKey, lang)
		c.Next()
	}
}

// GetLang returns the request language set by LanguageMiddleware
func GetLang(c *gin.Context) string {
	if lang, ok := c.Get(langKey); ok {
		if s, ok := lang.(string); ok {
			return s
		}
	}
	return translator.LanguageEn
}

// actorMiddleware resolves X-Member-ID against the roster
func (s *Server) actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		member, err := s.members.Lookup(c.GetHeader(MemberHeader))
		if err != nil {
			s.handlers.respondError(c, "Unknown member", err)
			return
		}
		c.Set(actorKey, member)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *entity.Member {
	return c.MustGet(actorKey).(*entity.Member)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	// Health check
	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/", s.actorMiddleware())
	{
		api.GET("/tasks", h.ListTasks)
		api.POST("/tasks", h.SaveTask)
		api.PUT("/tasks/:id", h.SaveTask)
		api.DELETE("/tasks/:id", h.DeleteTask)
		api.POST("/tasks/:id/toggle", h.ToggleTask)
		api.POST("/tasks/:id/subtasks/:subtaskId/toggle", h.ToggleSubtask)
		api.POST("/tasks/:id/postpone", h.PostponeTask)
		api.POST("/tasks/:id/skip", h.SkipOccurrence)
		api.POST("/tasks/:id/unlock", h.SetUnlocked)

		api.GET("/approvals", h.ListApprovals)
		api.POST("/approvals/:id/approve", h.ApproveRequest)
		api.POST("/approvals/:id/reject", h.RejectRequest)

		api.GET("/undo", h.PeekUndo)
		api.POST("/undo", h.Undo)

		api.POST("/sync", h.Refresh)
		api.GET("/queue", h.ListQueue)
		api.POST("/queue/drain", h.DrainQueue)
		api.PUT("/connectivity", h.SetConnectivity)

		api.GET("/history", h.ListHistory)
		api.GET("/history/export", h.ExportHistory)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
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

	// Create shutdown context with timeout
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
