// handlers_jobs.go - Asynchronous ingestion job handlers
package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/readtext/backend/internal/export"
	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/storage"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	jobs   JobManager
	inputs inputPolicy
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobManager, store storage.Store, allowLocal bool) JobHandler {
	return &JobHandlerImpl{
		jobs:   jobs,
		inputs: inputPolicy{store: store, allowLocal: allowLocal},
	}
}

// HandleStartJob queues an ingestion and returns the pending job
func (h *JobHandlerImpl) HandleStartJob(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	inputs, opts, err := h.inputs.resolve(&req)
	if err != nil {
		return err
	}

	job, err := h.jobs.StartJob(inputs, opts)
	if err != nil {
		if errors.Is(err, models.ErrConfig) {
			return NewIngestError(err)
		}
		return NewServiceUnavailableError(err.Error())
	}

	return c.JSON(http.StatusAccepted, job)
}

// HandleListJobs returns every retained job, newest first
func (h *JobHandlerImpl) HandleListJobs(c echo.Context) error {
	jobs := h.jobs.ListJobs()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartTime > jobs[j].StartTime })
	return c.JSON(http.StatusOK, jobs)
}

// HandleJobStatus returns the current state of a job
func (h *JobHandlerImpl) HandleJobStatus(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}

	return c.JSON(http.StatusOK, job)
}

// HandleJobResult returns the table of a complete job. ?format=duckdb sends
// the stored database file, which outlives the in-memory job.
func (h *JobHandlerImpl) HandleJobResult(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	format, err := responseFormat(c)
	if err != nil {
		return err
	}
	if format == export.FormatDuckDB {
		path, ok := h.jobs.ResultPath(id)
		if !ok {
			return NewNotFoundError("job result", id)
		}
		return c.Attachment(path, "readtext_"+id+".duckdb")
	}

	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	switch job.Status {
	case models.JobStatusError:
		return NewConflictError("job failed: " + job.Error)
	case models.JobStatusPending, models.JobStatusRunning:
		return NewConflictError("job is not complete")
	}

	t, ok := h.jobs.GetResult(id)
	if !ok {
		return NewNotFoundError("job result", id)
	}

	return writeTable(c, http.StatusOK, t, format)
}

// HandleCancelJob stops a pending or running job
func (h *JobHandlerImpl) HandleCancelJob(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if !h.jobs.CancelJob(id) {
		return NewNotFoundError("job", id)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleJobKeepAlive keeps a finished job from being cleaned up
func (h *JobHandlerImpl) HandleJobKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if !h.jobs.TouchJob(id) {
		return NewNotFoundError("job", id)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
