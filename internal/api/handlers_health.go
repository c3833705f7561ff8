// handlers_health.go - Health check and capability handlers
package api

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	formats FormatLister
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, formats FormatLister) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		formats: formats,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	})
}

type formatInfo struct {
	Format     string   `json:"format"`
	Extensions []string `json:"extensions"`
}

// HandleFormats lists the readable formats and their file extensions
func (h *HealthHandlerImpl) HandleFormats(c echo.Context) error {
	supported := h.formats.SupportedFormats()

	out := make([]formatInfo, 0, len(supported))
	for f, exts := range supported {
		out = append(out, formatInfo{Format: string(f), Extensions: exts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Format < out[j].Format })

	return c.JSON(http.StatusOK, out)
}
