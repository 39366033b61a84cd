// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/results"
	"github.com/ocr-menu-detector/backend/internal/session"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// OCRHandler handles the legacy one-shot scan endpoint
type OCRHandler interface {
	HandleScanImage(c echo.Context) error
}

// UploadHandler handles image upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleUploadJobStream(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// ScanHandler handles scan session operations
type ScanHandler interface {
	HandleStartScan(c echo.Context) error
	HandleScanStatus(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleScanProgressStream(c echo.Context) error
	HandleScanItems(c echo.Context) error
	HandleScanItemsCSV(c echo.Context) error
	HandleScanWords(c echo.Context) error
	HandleScanWordsMsgpack(c echo.Context) error
	HandleScanText(c echo.Context) error
	HandleGetCategories(c echo.Context) error
	HandleScanReport(c echo.Context) error
}

// MenuHandler handles menu extraction rules
type MenuHandler interface {
	HandleGetRules(c echo.Context) error
	HandleUploadRules(c echo.Context) error
	HandleGetDefaultRules(c echo.Context) error
	HandleRecentRulesFiles(c echo.Context) error
	ActiveRules() (string, *models.MenuRules)
	SetActiveRules(rulesID string, rules *models.MenuRules)
}

// HistoryHandler serves persisted scan records
type HistoryHandler interface {
	HandleRecentScans(c echo.Context) error
	HandleGetScanRecord(c echo.Context) error
}

// SessionManager defines the interface for scan session management
// This allows mocking in tests
type SessionManager interface {
	StartScan(fileID, filePath, fileName string, req session.Request) (*models.ScanSession, error)
	StartMultiScan(fileIDs, filePaths []string, fileName string, req session.Request) (*models.ScanSession, error)
	GetSession(id string) (*models.ScanSession, bool)
	GetFileName(id string) (string, bool)
	TouchSession(id string) bool
	QueryItems(ctx context.Context, id string, params results.ItemQuery, page, pageSize int) ([]models.MenuItem, int, bool)
	QueryWords(ctx context.Context, id string, params results.WordQuery, page, pageSize int) ([]models.Word, int, bool)
	AllItems(ctx context.Context, id string) ([]models.MenuItem, bool)
	GetCategories(ctx context.Context, id string) ([]string, bool)
	GetPlainText(id string) (string, bool)
	DeleteScansForFile(fileID string) int
}
