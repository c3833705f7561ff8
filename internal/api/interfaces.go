// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/readtext/backend/internal/ingest"
	"github.com/readtext/backend/internal/models"
)

// StagingHandler stages documents for later ingestion by id
type StagingHandler interface {
	HandleStageMultipart(c echo.Context) error
	HandleStageBase64(c echo.Context) error
	HandleStagePart(c echo.Context) error
	HandleAssemble(c echo.Context) error
	HandleListStaged(c echo.Context) error
	HandleGetStaged(c echo.Context) error
	HandleDeleteStaged(c echo.Context) error
	HandleRenameStaged(c echo.Context) error
}

// IngestHandler handles synchronous ingestion
type IngestHandler interface {
	HandleIngest(c echo.Context) error
}

// JobHandler handles asynchronous ingestion jobs
type JobHandler interface {
	HandleStartJob(c echo.Context) error
	HandleListJobs(c echo.Context) error
	HandleJobStatus(c echo.Context) error
	HandleJobResult(c echo.Context) error
	HandleCancelJob(c echo.Context) error
	HandleJobKeepAlive(c echo.Context) error
}

// HealthHandler handles health check and capability operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleFormats(c echo.Context) error
}

// Ingester runs one ingestion call.
type Ingester interface {
	Ingest(ctx context.Context, inputs []string, opts ingest.Options) (*models.ResultTable, error)
}

// JobManager defines the interface for job management
// This allows mocking in tests
type JobManager interface {
	StartJob(inputs []string, opts ingest.Options) (*models.IngestJob, error)
	GetJob(id string) (*models.IngestJob, bool)
	GetResult(id string) (*models.ResultTable, bool)
	ResultPath(id string) (string, bool)
	CancelJob(id string) bool
	ListJobs() []*models.IngestJob
	TouchJob(id string) bool
}

// FormatLister reports the formats the reader registry understands.
type FormatLister interface {
	SupportedFormats() map[models.Format][]string
}
