// handlers_ingest.go - Synchronous ingestion and shared request handling
package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/readtext/backend/internal/config"
	"github.com/readtext/backend/internal/export"
	"github.com/readtext/backend/internal/ingest"
	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/storage"
)

const mimeMsgpack = "application/msgpack"

// IngestRequest is the body of POST /api/ingest and POST /api/jobs. Inputs
// are paths, globs or URLs; FileIDs name staged uploads and are read after
// Inputs.
type IngestRequest struct {
	Inputs  []string       `json:"inputs"`
	FileIDs []string       `json:"fileIds"`
	Options config.Profile `json:"options"`
}

// inputPolicy turns a request into ingestion inputs.
type inputPolicy struct {
	store      storage.Store
	allowLocal bool
}

func (p inputPolicy) resolve(req *IngestRequest) ([]string, ingest.Options, error) {
	if len(req.Inputs) == 0 && len(req.FileIDs) == 0 {
		return nil, ingest.Options{}, NewValidationError("inputs or fileIds")
	}

	inputs := make([]string, 0, len(req.Inputs)+len(req.FileIDs))
	for _, in := range req.Inputs {
		if in == "" {
			return nil, ingest.Options{}, NewValidationError("inputs")
		}
		if !strings.Contains(in, "://") && !p.allowLocal {
			return nil, ingest.Options{}, NewForbiddenError("local paths are disabled; upload the file or use a URL")
		}
		inputs = append(inputs, in)
	}

	if len(req.FileIDs) > 0 && p.store == nil {
		return nil, ingest.Options{}, NewServiceUnavailableError("file staging is not configured")
	}
	for _, id := range req.FileIDs {
		if _, err := p.store.Get(id); err != nil {
			return nil, ingest.Options{}, storeError(err, id)
		}
	}
	if len(req.FileIDs) > 0 {
		paths, err := p.store.Paths(req.FileIDs)
		if err != nil {
			return nil, ingest.Options{}, storeError(err, "")
		}
		inputs = append(inputs, paths...)
	}

	opts, err := ingest.OptionsFromProfile(&req.Options)
	if err != nil {
		return nil, ingest.Options{}, NewIngestError(err)
	}
	return inputs, opts, nil
}

// responseFormat picks the body encoding from ?format= or the Accept header.
// An empty format means the structured JSON table.
func responseFormat(c echo.Context) (export.Format, error) {
	if s := c.QueryParam("format"); s != "" {
		f, err := export.ParseFormat(s)
		if err != nil {
			return "", NewValidationError("format")
		}
		return f, nil
	}

	accept := c.Request().Header.Get(echo.HeaderAccept)
	switch {
	case strings.Contains(accept, "msgpack"):
		return export.FormatMsgpack, nil
	case strings.Contains(accept, "text/csv"):
		return export.FormatCSV, nil
	}
	return "", nil
}

func contentType(f export.Format) string {
	switch f {
	case export.FormatCSV:
		return "text/csv; charset=utf-8"
	case export.FormatMsgpack:
		return mimeMsgpack
	}
	return echo.MIMEApplicationJSONCharsetUTF8
}

// writeTable encodes t in the negotiated format. Warnings travel in the body
// for JSON and msgpack and in a header count for CSV.
func writeTable(c echo.Context, status int, t *models.ResultTable, format export.Format) error {
	switch format {
	case "":
		return c.JSON(status, t)
	case export.FormatDuckDB:
		return NewBadRequestError("duckdb output is only available for job results", nil)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, t, format); err != nil {
		return NewInternalError("failed to encode result", err)
	}
	c.Response().Header().Set("X-Warning-Count", strconv.Itoa(len(t.Warnings)))
	return c.Blob(status, contentType(format), buf.Bytes())
}

// IngestHandlerImpl implements the IngestHandler interface
type IngestHandlerImpl struct {
	ingester Ingester
	inputs   inputPolicy
	timeout  time.Duration
}

// NewIngestHandler creates a synchronous ingestion handler. A positive
// timeout bounds each request.
func NewIngestHandler(ing Ingester, store storage.Store, allowLocal bool, timeout time.Duration) IngestHandler {
	return &IngestHandlerImpl{
		ingester: ing,
		inputs:   inputPolicy{store: store, allowLocal: allowLocal},
		timeout:  timeout,
	}
}

// HandleIngest reads the inputs and returns the table in the response
func (h *IngestHandlerImpl) HandleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	inputs, opts, err := h.inputs.resolve(&req)
	if err != nil {
		return err
	}
	format, err := responseFormat(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	t, err := h.ingester.Ingest(ctx, inputs, opts)
	if err != nil {
		return NewIngestError(err)
	}

	return writeTable(c, http.StatusOK, t, format)
}
