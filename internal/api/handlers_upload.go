// handlers_upload.go - Image upload operation handlers
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/storage"
	"github.com/ocr-menu-detector/backend/internal/upload"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store         storage.Store
	sessionMgr    SessionManager
	uploadManager *upload.Manager
	allowedExts   []string
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, sessionMgr SessionManager, uploadMgr *upload.Manager, allowedExts []string) UploadHandler {
	return &UploadHandlerImpl{
		store:         store,
		sessionMgr:    sessionMgr,
		uploadManager: uploadMgr,
		allowedExts:   allowedExts,
	}
}

// HandleUploadFile accepts an image as base64 JSON and saves it to storage
func (h *UploadHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}
	if !allowedFile(req.Name, h.allowedExts) {
		return NewFileTypeError(req.Name)
	}

	// Decode base64 content
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	// Save file to storage
	info, err := h.store.SaveBytes(req.Name, decoded)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadChunk accepts a single chunk of a chunked upload
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 chunk data
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	// Save chunk
	if err := h.store.SaveChunkBytes(req.UploadID, req.ChunkIndex, decoded); err != nil {
		return NewInternalError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload completes a chunked upload and starts async processing
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Gzipped uploads carry a .gz suffix that goes away during processing
	checkName := req.Name
	if req.Encoding == "gzip" {
		checkName = strings.TrimSuffix(checkName, ".gz")
	}
	if !allowedFile(checkName, h.allowedExts) {
		return NewFileTypeError(req.Name)
	}

	// Start async processing job
	job := h.uploadManager.StartJob(
		req.UploadID,
		req.Name,
		req.TotalChunks,
		req.OriginalSize,
		req.CompressedSize,
		req.Encoding,
	)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleUploadBinary accepts raw binary image upload (multipart/form-data)
func (h *UploadHandlerImpl) HandleUploadBinary(c echo.Context) error {
	// Get file from form
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	if !allowedFile(file.Filename, h.allowedExts) {
		return NewFileTypeError(file.Filename)
	}

	// Open uploaded file
	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	// Save to storage
	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadJobStream streams upload job status via SSE
func (h *UploadHandlerImpl) HandleUploadJobStream(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}

	job, ok := h.uploadManager.GetJob(jobID)
	if !ok {
		return NewNotFoundError("upload job", jobID)
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sendJobEvent(c, job)
	if job.Status == upload.StatusComplete || job.Status == upload.StatusError {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			job, ok := h.uploadManager.GetJob(jobID)
			if !ok {
				sendJobError(c, "upload job disappeared")
				return nil
			}
			sendJobEvent(c, job)
			if job.Status == upload.StatusComplete || job.Status == upload.StatusError {
				return nil
			}
		case <-timeout.C:
			sendJobError(c, "stream timeout")
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// HandleGetRecentFiles returns a list of recently uploaded menu images
func (h *UploadHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	files, err := h.store.List(50)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	// Filter to only images (exclude rules files and the like)
	images := filterImageFiles(files, h.allowedExts)

	// Limit to 20 after filtering
	if len(images) > 20 {
		images = images[:20]
	}

	return c.JSON(http.StatusOK, images)
}

// HandleGetFile returns metadata for a specific file
func (h *UploadHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a file and any scan sessions built from it
func (h *UploadHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}

	// Clean up associated scan results
	if h.sessionMgr != nil {
		h.sessionMgr.DeleteScansForFile(id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *UploadHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Name == "" {
		return NewValidationError("name")
	}
	if !allowedFile(req.Name, h.allowedExts) {
		return NewFileTypeError(req.Name)
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// Request/Response types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type uploadChunkRequest struct {
	UploadID    string `json:"uploadId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Data        string `json:"data"` // Base64-encoded chunk
	TotalChunks int    `json:"totalChunks"`
	Compressed  bool   `json:"compressed"`
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID       string `json:"uploadId"`
	Name           string `json:"name"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Encoding       string `json:"encoding"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}

// Helper functions

// allowedFile reports whether the name carries an allowed image extension.
// The extension is everything after the last dot, compared case-insensitively;
// extensionless names are rejected.
func allowedFile(name string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range exts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// filterImageFiles keeps only files with an allowed image extension
func filterImageFiles(files []*models.FileInfo, exts []string) []*models.FileInfo {
	var images []*models.FileInfo
	for _, f := range files {
		if allowedFile(f.Name, exts) {
			images = append(images, f)
		}
	}
	return images
}

func sendJobEvent(c echo.Context, job *upload.Job) {
	data, _ := json.Marshal(job)
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()
}

func sendJobError(c echo.Context, message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()
}
