package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ocr-menu-detector/backend/internal/api"
	"github.com/ocr-menu-detector/backend/internal/config"
	"github.com/ocr-menu-detector/backend/internal/history"
	"github.com/ocr-menu-detector/backend/internal/ocr"
	"github.com/ocr-menu-detector/backend/internal/results"
	"github.com/ocr-menu-detector/backend/internal/session"
	"github.com/ocr-menu-detector/backend/internal/storage"
	"github.com/ocr-menu-detector/backend/internal/translate"
	"github.com/ocr-menu-detector/backend/internal/upload"
	"github.com/ocr-menu-detector/backend/internal/web"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service with the built-in web page",
		Long: `Serve starts the detector as an HTTP service.

The service exposes the scan API under /api, a WebSocket upload protocol
at /api/ws/uploads, and (when the frontend is embedded) the upload page
at /. Configuration loads from an XML file next to the executable; a
default file is written on first run.`,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: menudetector.xml next to the executable)")
	cmd.Flags().IntP("port", "p", 0,
		"Override the configured listen port")

	return cmd
}

// runServeCmd wires storage, OCR engines, and the session manager together
// and runs the Echo server until it fails or is killed.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "menudetector.xml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if port, err := cmd.Flags().GetInt("port"); err == nil && port > 0 {
		cfg.Server.Port = port
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Scan history is best-effort: the service runs without it.
	var historyStore *history.Store
	if cfg.Storage.EnablePersistence {
		historyStore, err = history.Open(cfg.Storage.HistoryDirectory, history.DefaultOptions())
		if err != nil {
			fmt.Printf("Warning: scan history disabled: %v\n", err)
			historyStore = nil
		} else {
			defer historyStore.Close()
		}
	}

	engines := buildEngines(cfg)
	if _, err := engines.FindEngine(cfg.OCR.Engine); err != nil {
		fmt.Printf("Warning: %v (scans will fail until an engine is available)\n", err)
	}

	translator := buildTranslator(cmd.Context(), cfg)
	defer translator.Close()

	sessionMgr := session.NewManager(engines, translator, nil, historyStore, cfg.Storage.TempDirectory, session.Options{
		Engine:         cfg.OCR.Engine,
		Languages:      cfg.OCRLanguages(),
		PageSegMode:    cfg.OCR.PageSegMode,
		DPI:            cfg.OCR.DPI,
		MaxDimension:   cfg.Processing.MaxImageDimension,
		KeepRawVariant: cfg.OCR.KeepRawVariant,
		MaxConcurrent:  cfg.Processing.MaxConcurrentScans,
		Store: results.Options{
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
			Threads:     cfg.Advanced.DuckDBThreads,
		},
	})

	uploadMgr := upload.NewManager(cfg.GetUploadDir(), fileStore)

	// Start background cleanup of idle sessions and finished upload jobs
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute)
			uploadMgr.CleanupOldJobs(30 * time.Minute)
		}
	}()

	if historyStore != nil {
		go func() {
			ticker := time.NewTicker(1 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := historyStore.Prune(context.Background(), 500); err != nil {
					fmt.Printf("Warning: history prune failed: %v\n", err)
				}
			}
		}()
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Store:             fileStore,
		SessionMgr:        sessionMgr,
		UploadMgr:         uploadMgr,
		History:           historyStore,
		Version:           getVersion(),
		AllowedExtensions: cfg.AllowedExtensions(),
		AllowFileDeletion: cfg.Security.AllowFileDeletion,
		SyncScanTimeout:   time.Duration(cfg.Processing.SyncScanTimeoutSeconds) * time.Second,
	})

	e := echo.New()

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/stream") ||
				strings.Contains(path, "/upload") ||
				strings.Contains(path, "/progress") ||
				path == "/api/ocr" ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout - scan took too long",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// Optional static token gate for the API
	if cfg.Security.RequireAuth && cfg.Security.AuthToken != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/api/health" || !strings.HasPrefix(path, "/api")
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.Security.AuthToken, nil
			},
		}))
	}

	// CORS configuration
	if cfg.Server.EnableCORS {
		if embeddedMode {
			// In embedded mode, use config settings
			origins := strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
			if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
				origins = []string{"*"}
			}
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: origins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			}))
		} else {
			// Development mode - only allow localhost
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{
					"http://localhost:5173", "http://127.0.0.1:5173",
					"http://localhost:3000", "http://127.0.0.1:3000",
				},
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		}
	}

	api.SetupMiddleware(e)
	api.RegisterRoutes(e, handlers)
	web.RegisterDocsRoutes(e)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	return e.StartServer(s)
}

// buildEngines registers the configured OCR engines in preference order.
func buildEngines(cfg *config.AppConfig) *ocr.Registry {
	engines := ocr.NewRegistry(ocr.NewTesseractEngine(cfg.OCR.TessdataPrefix))
	if cfg.OCR.RemoteURL != "" {
		engines.Register(ocr.NewRemoteEngine(
			cfg.OCR.RemoteURL,
			cfg.OCR.RemoteAuthToken,
			time.Duration(cfg.OCR.RemoteTimeoutSeconds)*time.Second,
		))
	}
	return engines
}

// buildTranslator returns the configured translator, falling back to the
// no-op translator when the provider is unavailable.
func buildTranslator(ctx context.Context, cfg *config.AppConfig) translate.Translator {
	if cfg.Translate.Provider != "gemini" || cfg.Translate.APIKey == "" {
		return translate.Noop{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t, err := translate.NewGemini(ctx, cfg.Translate.APIKey, cfg.Translate.Model)
	if err != nil {
		fmt.Printf("Warning: translation disabled: %v\n", err)
		return translate.Noop{}
	}
	return t
}

// printBanner prints the startup banner.
func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "Development"
	if embeddedMode {
		mode = "Standalone (Embedded Frontend)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           OCR Menu Detector Server                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", getVersion())
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
