// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/readtext/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Jobs     JobManager
	Ingester Ingester
	Formats  FormatLister
	Version  string

	// AllowLocalPaths lets requests name files on the server's filesystem.
	AllowLocalPaths bool
	// IngestTimeout bounds synchronous ingestion; zero disables the limit.
	IngestTimeout time.Duration
	// AllowFileDeletion registers DELETE /api/files/:id.
	AllowFileDeletion bool
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Staging StagingHandler
	Ingest  IngestHandler
	Jobs    JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Formats),
		Staging: NewStagingHandler(deps.Store),
		Ingest:  NewIngestHandler(deps.Ingester, deps.Store, deps.AllowLocalPaths, deps.IngestTimeout),
		Jobs:    NewJobHandler(deps.Jobs, deps.Store, deps.AllowLocalPaths),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, allowDeletion bool) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/formats", handlers.Health.HandleFormats)

	// Document staging routes
	files := apiGroup.Group("/files")
	files.POST("/upload", handlers.Staging.HandleStageMultipart)
	files.POST("/upload/base64", handlers.Staging.HandleStageBase64)
	files.POST("/upload/chunk", handlers.Staging.HandleStagePart)
	files.POST("/upload/complete", handlers.Staging.HandleAssemble)
	files.GET("/recent", handlers.Staging.HandleListStaged)
	files.GET("/:id", handlers.Staging.HandleGetStaged)
	files.PUT("/:id", handlers.Staging.HandleRenameStaged)
	if allowDeletion {
		files.DELETE("/:id", handlers.Staging.HandleDeleteStaged)
	}

	// Ingestion
	apiGroup.POST("/ingest", handlers.Ingest.HandleIngest)

	jobs := apiGroup.Group("/jobs")
	jobs.POST("", handlers.Jobs.HandleStartJob)
	jobs.GET("", handlers.Jobs.HandleListJobs)
	jobs.GET("/:id", handlers.Jobs.HandleJobStatus)
	jobs.GET("/:id/result", handlers.Jobs.HandleJobResult)
	jobs.DELETE("/:id", handlers.Jobs.HandleCancelJob)
	jobs.POST("/:id/keepalive", handlers.Jobs.HandleJobKeepAlive)
}

// SetupMiddleware configures the shared error handler
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}

// NewServer builds an echo instance with every route registered.
func NewServer(deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(deps), deps.AllowFileDeletion)
	return e
}
