// handlers_ocr.go - Legacy one-shot OCR endpoint
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/session"
	"github.com/ocr-menu-detector/backend/internal/storage"
)

// defaultSyncScanTimeout bounds POST /api/ocr when no timeout is configured.
const defaultSyncScanTimeout = 120 * time.Second

// OCRHandlerImpl implements the OCRHandler interface
type OCRHandlerImpl struct {
	store       storage.Store
	sessionMgr  SessionManager
	menu        MenuHandler
	allowedExts []string
	timeout     time.Duration
}

// NewOCRHandler creates the handler for the legacy synchronous endpoint
func NewOCRHandler(store storage.Store, sessionMgr SessionManager, menu MenuHandler, allowedExts []string, timeout time.Duration) OCRHandler {
	if timeout <= 0 {
		timeout = defaultSyncScanTimeout
	}
	return &OCRHandlerImpl{
		store:       store,
		sessionMgr:  sessionMgr,
		menu:        menu,
		allowedExts: allowedExts,
		timeout:     timeout,
	}
}

// scanImageResponse is the wire format of the original service. The JSON
// keys are snake_case and must stay that way.
type scanImageResponse struct {
	Success          bool              `json:"success"`
	DetectedLanguage string            `json:"detected_language"`
	MenuItems        []models.MenuItem `json:"menu_items"`
	TotalItems       int               `json:"total_items"`
	Confidence       float64           `json:"confidence"`
	RawText          string            `json:"raw_text"`
	Translated       bool              `json:"translated"`
}

// HandleScanImage accepts a multipart image, runs the full scan pipeline and
// waits for the result. Errors use the legacy {"error": ...} shape instead of
// APIError because existing clients parse it.
func (h *OCRHandlerImpl) HandleScanImage(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file provided"})
	}
	if !allowedFile(fileHeader.Filename, h.allowedExts) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid file type"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to read upload: %v", err)})
	}
	defer src.Close()

	info, err := h.store.Save(fileHeader.Filename, src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to store upload: %v", err)})
	}

	path, err := h.store.GetFilePath(info.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to locate upload: %v", err)})
	}

	req := session.Request{TargetLanguage: c.FormValue("target_lang")}
	if h.menu != nil {
		_, req.Rules = h.menu.ActiveRules()
	}

	sess, err := h.sessionMgr.StartScan(info.ID, path, info.Name, req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to start scan: %v", err)})
	}

	final, err := h.waitForScan(c.Request().Context(), sess.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if final.Status == models.ScanStatusError {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": scanFailureReason(final)})
	}

	ctx := c.Request().Context()
	items, ok := h.sessionMgr.AllItems(ctx, sess.ID)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read scan results"})
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	rawText, _ := h.sessionMgr.GetPlainText(sess.ID)

	return c.JSON(http.StatusOK, scanImageResponse{
		Success:          true,
		DetectedLanguage: final.DetectedLanguage,
		MenuItems:        items,
		TotalItems:       len(items),
		Confidence:       final.MeanConfidence,
		RawText:          rawText,
		Translated:       final.Translated,
	})
}

// waitForScan polls the session until it finishes or the deadline passes.
func (h *OCRHandlerImpl) waitForScan(ctx context.Context, sessionID string) (*models.ScanSession, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.sessionMgr.GetSession(sessionID)
			if !ok {
				return nil, fmt.Errorf("scan session disappeared")
			}
			if sess.Status == models.ScanStatusComplete || sess.Status == models.ScanStatusError {
				return sess, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("scan timed out")
		}
	}
}

// scanFailureReason picks the first hard error recorded by the pipeline.
func scanFailureReason(sess *models.ScanSession) string {
	for _, e := range sess.Errors {
		if !e.Warning {
			return e.Reason
		}
	}
	return "scan failed"
}
