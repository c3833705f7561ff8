// handlers_staging.go - Document staging handlers
package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/storage"
)

const defaultListLimit = 20

// StagingHandlerImpl implements the StagingHandler interface. Staged
// documents keep their uploaded name, so /api/ingest with fileIds sees the
// same doc_id and filename docvars as a local read of that file.
type StagingHandlerImpl struct {
	store storage.Store
}

// NewStagingHandler creates a staging handler backed by store
func NewStagingHandler(store storage.Store) StagingHandler {
	return &StagingHandlerImpl{store: store}
}

// stagedDocuments is the response of the multi-document upload endpoints.
// IDs lists the staged ids in upload order, ready to send as fileIds.
type stagedDocuments struct {
	Files []*models.FileInfo `json:"files"`
	IDs   []string           `json:"ids"`
}

func (s *stagedDocuments) add(info *models.FileInfo) {
	s.Files = append(s.Files, info)
	s.IDs = append(s.IDs, info.ID)
}

// storeError maps staging failures onto API errors.
func storeError(err error, id string) *APIError {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError("file", id)
	case errors.Is(err, storage.ErrInvalidName):
		return NewBadRequestError("invalid document name", err)
	case errors.Is(err, storage.ErrIncomplete):
		return NewConflictError(err.Error())
	}
	return NewInternalError("staging failed", err)
}

// HandleStageMultipart stages every "file" part of a multipart form, in
// order. A corpus can be sent in one request.
func (h *StagingHandlerImpl) HandleStageMultipart(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart/form-data", err)
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		return NewValidationError("file")
	}

	var out stagedDocuments
	for _, fh := range headers {
		info, err := h.stageHeader(fh)
		if err != nil {
			return storeError(err, fh.Filename)
		}
		out.add(info)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *StagingHandlerImpl) stageHeader(fh *multipart.FileHeader) (*models.FileInfo, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return h.store.Save(fh.Filename, src)
}

type encodedDocument struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64
}

type stageBase64Request struct {
	Files []encodedDocument `json:"files"`
}

// HandleStageBase64 stages documents sent as base64 JSON. Every document is
// decoded before any is staged, so a bad one stages nothing.
func (h *StagingHandlerImpl) HandleStageBase64(c echo.Context) error {
	var req stageBase64Request
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.Files) == 0 {
		return NewValidationError("files")
	}

	decoded := make([][]byte, len(req.Files))
	for i, doc := range req.Files {
		if doc.Name == "" {
			return NewValidationError("files[" + strconv.Itoa(i) + "].name")
		}
		data, err := base64.StdEncoding.DecodeString(doc.Data)
		if err != nil {
			return NewBadRequestError("invalid base64 data for "+doc.Name, err)
		}
		decoded[i] = data
	}

	var out stagedDocuments
	for i, doc := range req.Files {
		info, err := h.store.Save(doc.Name, bytes.NewReader(decoded[i]))
		if err != nil {
			return storeError(err, doc.Name)
		}
		out.add(info)
	}
	return c.JSON(http.StatusCreated, out)
}

type stagePartRequest struct {
	UploadID string `json:"uploadId"`
	Index    *int   `json:"index"`
	Data     string `json:"data"` // base64
}

// HandleStagePart stores one part of a large document. Parts may arrive in
// any order.
func (h *StagingHandlerImpl) HandleStagePart(c echo.Context) error {
	var req stagePartRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if req.Index == nil || *req.Index < 0 {
		return NewValidationError("index")
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}
	if err := h.store.SavePart(req.UploadID, *req.Index, bytes.NewReader(data)); err != nil {
		return NewBadRequestError("failed to store part", err)
	}
	return c.NoContent(http.StatusAccepted)
}

type assembleRequest struct {
	UploadID string `json:"uploadId"`
	Name     string `json:"name"`
	Parts    int    `json:"parts"`
}

// HandleAssemble joins the parts of an upload into one staged document. A
// missing part is a 409 naming the parts to resend.
func (h *StagingHandlerImpl) HandleAssemble(c echo.Context) error {
	var req assembleRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	switch {
	case req.UploadID == "":
		return NewValidationError("uploadId")
	case req.Name == "":
		return NewValidationError("name")
	case req.Parts <= 0:
		return NewValidationError("parts")
	}

	info, err := h.store.Assemble(req.UploadID, req.Name, req.Parts)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) || errors.Is(err, storage.ErrIncomplete) {
			return storeError(err, req.UploadID)
		}
		return NewBadRequestError("failed to assemble upload", err)
	}
	return c.JSON(http.StatusCreated, info)
}

// HandleListStaged lists staged documents, newest first. ?format= keeps
// only documents of one reader format and ?limit= caps the list.
func (h *StagingHandlerImpl) HandleListStaged(c echo.Context) error {
	limit := defaultListLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	format := models.Format(c.QueryParam("format"))

	fetch := limit
	if format != "" {
		fetch = 0
	}
	files, err := h.store.List(fetch)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	if format != "" {
		kept := files[:0]
		for _, f := range files {
			if f.Format == format {
				kept = append(kept, f)
			}
		}
		files = kept
		if limit > 0 && len(files) > limit {
			files = files[:limit]
		}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetStaged returns the metadata of one staged document
func (h *StagingHandlerImpl) HandleGetStaged(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return storeError(err, id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteStaged removes a staged document
func (h *StagingHandlerImpl) HandleDeleteStaged(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return storeError(err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleRenameStaged renames a staged document. The new extension picks
// the reader and the new base name gives the doc_id and filename docvars.
func (h *StagingHandlerImpl) HandleRenameStaged(c echo.Context) error {
	id := c.Param("id")

	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return storeError(err, id)
	}
	return c.JSON(http.StatusOK, info)
}
