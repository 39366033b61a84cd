// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/history"
	"github.com/ocr-menu-detector/backend/internal/storage"
	"github.com/ocr-menu-detector/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store             storage.Store
	SessionMgr        SessionManager
	UploadMgr         *upload.Manager
	History           *history.Store
	Version           string
	AllowedExtensions []string // "png", "jpg", ... (no dots)
	AllowFileDeletion bool
	SyncScanTimeout   time.Duration // deadline for the legacy /api/ocr endpoint
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	OCR     OCRHandler
	Upload  UploadHandler
	Scan    ScanHandler
	Menu    MenuHandler
	History HistoryHandler
	WS      *WebSocketHandler

	allowFileDeletion bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	menu := NewMenuHandler(deps.Store)
	return &Handlers{
		Health:  NewHealthHandler(deps.Version),
		OCR:     NewOCRHandler(deps.Store, deps.SessionMgr, menu, deps.AllowedExtensions, deps.SyncScanTimeout),
		Upload:  NewUploadHandler(deps.Store, deps.SessionMgr, deps.UploadMgr, deps.AllowedExtensions),
		Scan:    NewScanHandler(deps.Store, deps.SessionMgr, menu),
		Menu:    menu,
		History: NewHistoryHandler(deps.History),
		WS:      NewWebSocketHandler(deps.Store, deps.SessionMgr, menu, deps.AllowedExtensions),

		allowFileDeletion: deps.AllowFileDeletion,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check and legacy one-shot OCR
	e.GET("/api/health", handlers.Health.HandleHealth)
	e.POST("/api/ocr", handlers.OCR.HandleScanImage)

	// WebSocket upload protocol
	e.GET("/api/ws/uploads", handlers.WS.HandleWebSocket)

	// Image upload routes
	filesGroup := e.Group("/api/files")
	filesGroup.POST("/upload", handlers.Upload.HandleUploadFile)
	filesGroup.POST("/upload/binary", handlers.Upload.HandleUploadBinary)
	filesGroup.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	filesGroup.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	filesGroup.GET("/upload/:jobId/status", handlers.Upload.HandleUploadJobStream)
	filesGroup.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	filesGroup.GET("/:id", handlers.Upload.HandleGetFile)
	filesGroup.PUT("/:id", handlers.Upload.HandleRenameFile)
	if handlers.allowFileDeletion {
		filesGroup.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	}

	// Scan session routes
	scanGroup := e.Group("/api/scan")
	scanGroup.POST("", handlers.Scan.HandleStartScan)
	scanGroup.GET("/:sessionId/status", handlers.Scan.HandleScanStatus)
	scanGroup.POST("/:sessionId/keepalive", handlers.Scan.HandleSessionKeepAlive)
	scanGroup.GET("/:sessionId/progress", handlers.Scan.HandleScanProgressStream)
	scanGroup.GET("/:sessionId/items", handlers.Scan.HandleScanItems)
	scanGroup.GET("/:sessionId/items/csv", handlers.Scan.HandleScanItemsCSV)
	scanGroup.GET("/:sessionId/words", handlers.Scan.HandleScanWords)
	scanGroup.GET("/:sessionId/words/msgpack", handlers.Scan.HandleScanWordsMsgpack)
	scanGroup.GET("/:sessionId/text", handlers.Scan.HandleScanText)
	scanGroup.GET("/:sessionId/categories", handlers.Scan.HandleGetCategories)
	scanGroup.GET("/:sessionId/report", handlers.Scan.HandleScanReport)

	// Menu rules routes
	menuGroup := e.Group("/api/menu")
	menuGroup.GET("/rules", handlers.Menu.HandleGetRules)
	menuGroup.POST("/rules", handlers.Menu.HandleUploadRules)
	menuGroup.GET("/rules/default", handlers.Menu.HandleGetDefaultRules)
	menuGroup.GET("/rules/recent", handlers.Menu.HandleRecentRulesFiles)

	// Scan history routes
	historyGroup := e.Group("/api/scans/history")
	historyGroup.GET("", handlers.History.HandleRecentScans)
	historyGroup.GET("/:id", handlers.History.HandleGetScanRecord)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
