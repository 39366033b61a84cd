// handlers_scan.go - Scan session operation handlers
package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/report"
	"github.com/ocr-menu-detector/backend/internal/results"
	"github.com/ocr-menu-detector/backend/internal/session"
	"github.com/ocr-menu-detector/backend/internal/storage"
)

// ScanHandlerImpl implements the ScanHandler interface
type ScanHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
	menu       MenuHandler
}

// NewScanHandler creates a new scan handler instance
func NewScanHandler(store storage.Store, sessionMgr SessionManager, menu MenuHandler) ScanHandler {
	return &ScanHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
		menu:       menu,
	}
}

// HandleStartScan starts a new scan session for one or more images
func (h *ScanHandlerImpl) HandleStartScan(c echo.Context) error {
	var req startScanRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	// Normalize to array of file IDs
	fileIDs := req.normalizeFileIDs()
	if len(fileIDs) == 0 {
		return NewValidationError("fileId or fileIds")
	}

	// Get file paths for all files
	filePaths, validFileIDs, displayName, err := h.resolveFilePaths(fileIDs)
	if err != nil {
		return err
	}

	scanReq := session.Request{
		TargetLanguage: req.TargetLang,
		Engine:         req.Engine,
		Languages:      req.Languages,
		SkipPreprocess: req.SkipPreprocess,
	}
	if h.menu != nil {
		_, scanReq.Rules = h.menu.ActiveRules()
	}

	// Start scan session
	sess, err := h.sessionMgr.StartMultiScan(validFileIDs, filePaths, displayName, scanReq)
	if err != nil {
		return NewInternalError("failed to start scan", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleScanStatus returns the current status of a scan session
func (h *ScanHandlerImpl) HandleScanStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *ScanHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleScanProgressStream streams scan progress via SSE
func (h *ScanHandlerImpl) HandleScanProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// Get initial session state
	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		h.sendSSEError(c, "session not found")
		return nil
	}

	// Send initial status
	h.sendSSEData(c, sess)
	if sess.Status == models.ScanStatusComplete || sess.Status == models.ScanStatusError {
		return nil
	}

	// Stream updates until complete or error
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.sessionMgr.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}

			h.sendSSEData(c, sess)

			// Stop streaming if complete or error
			if sess.Status == models.ScanStatusComplete ||
				sess.Status == models.ScanStatusError {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// HandleScanItems returns paginated menu items for a completed scan
func (h *ScanHandlerImpl) HandleScanItems(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.requireComplete(id); err != nil {
		return err
	}

	// Parse pagination params
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	params := h.buildItemQuery(c)

	ctx := c.Request().Context()
	items, total, ok := h.sessionMgr.QueryItems(ctx, id, params, page, pageSize)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if items == nil {
		items = []models.MenuItem{}
	}

	return c.JSON(http.StatusOK, itemsResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleScanItemsCSV downloads every extracted item as a CSV file
func (h *ScanHandlerImpl) HandleScanItemsCSV(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.requireComplete(id); err != nil {
		return err
	}

	ctx := c.Request().Context()
	items, ok := h.sessionMgr.AllItems(ctx, id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"name", "description", "price", "currency", "category", "confidence", "page", "full_text", "translated_name"})
	for _, item := range items {
		w.Write([]string{
			item.Name,
			item.Description,
			item.Price,
			item.Currency,
			item.Category,
			strconv.FormatFloat(item.Confidence, 'f', 3, 64),
			strconv.Itoa(item.Page),
			item.FullText,
			item.TranslatedName,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return NewInternalError("failed to write CSV", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="menu_items_%s.csv"`, shortID(id)))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// HandleScanWords returns paginated recognized words with bounding boxes
func (h *ScanHandlerImpl) HandleScanWords(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.requireComplete(id); err != nil {
		return err
	}

	page, pageSize := wordPagination(c)
	params := h.buildWordQuery(c)

	ctx := c.Request().Context()
	words, total, ok := h.sessionMgr.QueryWords(ctx, id, params, page, pageSize)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if words == nil {
		words = []models.Word{}
	}

	return c.JSON(http.StatusOK, wordsResponse{
		Words:    words,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleScanWordsMsgpack returns the same rows as HandleScanWords encoded as
// MessagePack. Overlay rendering fetches thousands of boxes at once and the
// binary encoding roughly halves the payload.
func (h *ScanHandlerImpl) HandleScanWordsMsgpack(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.requireComplete(id); err != nil {
		return err
	}

	page, pageSize := wordPagination(c)
	params := h.buildWordQuery(c)

	ctx := c.Request().Context()
	words, total, ok := h.sessionMgr.QueryWords(ctx, id, params, page, pageSize)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if words == nil {
		words = []models.Word{}
	}

	data, err := msgpack.Marshal(map[string]interface{}{
		"words":    words,
		"page":     page,
		"pageSize": pageSize,
		"total":    total,
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleScanText returns the full recognized plain text
func (h *ScanHandlerImpl) HandleScanText(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.requireComplete(id); err != nil {
		return err
	}

	text, ok := h.sessionMgr.GetPlainText(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	return c.String(http.StatusOK, text)
}

// HandleGetCategories returns unique item categories in a session
func (h *ScanHandlerImpl) HandleGetCategories(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	ctx := c.Request().Context()
	categories, ok := h.sessionMgr.GetCategories(ctx, id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	return c.JSON(http.StatusOK, categories)
}

// HandleScanReport renders a completed scan as a Markdown or HTML report
func (h *ScanHandlerImpl) HandleScanReport(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.requireComplete(id); err != nil {
		return err
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	ctx := c.Request().Context()
	items, ok := h.sessionMgr.AllItems(ctx, id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	fileName, _ := h.sessionMgr.GetFileName(id)

	data := buildReportData(sess, fileName, items)

	format := c.QueryParam("format")
	var buf bytes.Buffer
	switch format {
	case "html":
		if _, err := report.NewHTMLWriter(&buf).Write(data); err != nil {
			return NewInternalError("failed to render report", err)
		}
		return c.HTMLBlob(http.StatusOK, buf.Bytes())
	case "", "markdown", "md":
		if _, err := report.NewMarkdownWriter(&buf).Write(data); err != nil {
			return NewInternalError("failed to render report", err)
		}
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", buf.Bytes())
	default:
		return NewBadRequestError(fmt.Sprintf("unknown report format: %s", format), nil)
	}
}

// Request/Response types

type startScanRequest struct {
	FileID         string   `json:"fileId"`
	FileIDs        []string `json:"fileIds"`
	TargetLang     string   `json:"targetLang"`
	Languages      []string `json:"languages"`
	Engine         string   `json:"engine"`
	SkipPreprocess bool     `json:"skipPreprocess"`
}

func (r *startScanRequest) normalizeFileIDs() []string {
	if len(r.FileIDs) > 0 {
		return r.FileIDs
	}
	if r.FileID != "" {
		return []string{r.FileID}
	}
	return nil
}

type itemsResponse struct {
	Items    []models.MenuItem `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int               `json:"total"`
}

type wordsResponse struct {
	Words    []models.Word `json:"words"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int           `json:"total"`
}

// Helper methods

// requireComplete returns a 404 for unknown sessions and a 409 for sessions
// that have not finished yet, so result endpoints never race the pipeline.
func (h *ScanHandlerImpl) requireComplete(id string) error {
	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	switch sess.Status {
	case models.ScanStatusComplete:
		return nil
	case models.ScanStatusError:
		return NewConflictError("scan failed")
	default:
		return NewConflictError("scan not complete")
	}
}

func (h *ScanHandlerImpl) resolveFilePaths(fileIDs []string) ([]string, []string, string, error) {
	var filePaths []string
	var validFileIDs []string
	var displayName string

	for _, fid := range fileIDs {
		info, err := h.store.Get(fid)
		if err != nil {
			return nil, nil, "", NewNotFoundError("file", fid)
		}

		path, err := h.store.GetFilePath(fid)
		if err != nil {
			return nil, nil, "", NewInternalError("failed to get file path", err)
		}

		if displayName == "" {
			displayName = info.Name
		}
		validFileIDs = append(validFileIDs, info.ID)
		filePaths = append(filePaths, path)
	}

	return filePaths, validFileIDs, displayName, nil
}

func (h *ScanHandlerImpl) buildItemQuery(c echo.Context) results.ItemQuery {
	minConf, _ := strconv.ParseFloat(c.QueryParam("minConfidence"), 64)
	return results.ItemQuery{
		Search:        c.QueryParam("search"),
		Category:      c.QueryParam("category"),
		MinConfidence: minConf,
		SortColumn:    c.QueryParam("sortColumn"),
		SortDirection: c.QueryParam("sortDirection"),
	}
}

func (h *ScanHandlerImpl) buildWordQuery(c echo.Context) results.WordQuery {
	minConf, _ := strconv.ParseFloat(c.QueryParam("minConfidence"), 64)
	return results.WordQuery{
		Search:        c.QueryParam("search"),
		MinConfidence: minConf,
		SortColumn:    c.QueryParam("sortColumn"),
		SortDirection: c.QueryParam("sortDirection"),
	}
}

// wordPagination clamps word paging. Word overlays pull far more rows per
// request than item tables, so the cap is higher.
func wordPagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 2000 {
		pageSize = 500
	}
	return page, pageSize
}

func buildReportData(sess *models.ScanSession, fileName string, items []models.MenuItem) *report.Data {
	pageCount := 1
	if len(sess.FileIDs) > 1 {
		pageCount = len(sess.FileIDs)
	}

	var warnings []string
	for _, e := range sess.Errors {
		if e.Warning {
			warnings = append(warnings, fmt.Sprintf("%s: %s", e.Stage, e.Reason))
		}
	}

	scannedAt := time.Now()
	if sess.EndTime > 0 {
		scannedAt = time.UnixMilli(sess.EndTime)
	}

	return &report.Data{
		FileName:         fileName,
		SessionID:        sess.ID,
		ScannedAt:        scannedAt,
		DetectedLanguage: sess.DetectedLanguage,
		TargetLanguage:   sess.TargetLanguage,
		Engine:           sess.Engine,
		PageCount:        pageCount,
		WordCount:        sess.WordCount,
		MeanConfidence:   sess.MeanConfidence,
		DurationMs:       sess.ProcessingTimeMs,
		Items:            items,
		Warnings:         warnings,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (h *ScanHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *ScanHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}
