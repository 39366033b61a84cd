// Package config provides XML-based configuration management for the
// OCR Menu Detector service.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"MenuDetector"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// OCR engine configuration
	OCR OCRConfig `xml:"OCR"`

	// Translation configuration
	Translate TranslateConfig `xml:"Translate"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" validate:"min=1,max=65535"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" validate:"min=1"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" validate:"min=1"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" validate:"min=1"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory"`
	TempDirectory     string `xml:"TempDirectory"`
	HistoryDirectory  string `xml:"HistoryDirectory"`
	MaxUploadSize     string `xml:"MaxUploadSize"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// OCRConfig contains OCR engine settings
type OCRConfig struct {
	Engine               string `xml:"Engine" validate:"oneof=auto tesseract remote"`
	Languages            string `xml:"Languages"` // comma-separated traineddata names, e.g. "eng,spa"
	PageSegMode          int    `xml:"PageSegMode" validate:"min=0,max=13"`
	DPI                  int    `xml:"DPI" validate:"min=70,max=1200"`
	TessdataPrefix       string `xml:"TessdataPrefix"`
	RemoteURL            string `xml:"RemoteURL"`
	RemoteAuthToken      string `xml:"RemoteAuthToken"`
	RemoteTimeoutSeconds int    `xml:"RemoteTimeoutSeconds" validate:"min=1"`
	KeepRawVariant       bool   `xml:"KeepRawVariant"` // OCR the unprocessed image too, keep the better result
}

// TranslateConfig contains translation settings
type TranslateConfig struct {
	Provider string `xml:"Provider" validate:"oneof=none gemini"`
	Model    string `xml:"Model"`
	APIKey   string `xml:"APIKey"`
}

// ProcessingConfig contains scan pipeline settings
type ProcessingConfig struct {
	MaxConcurrentScans     int `xml:"MaxConcurrentScans" validate:"min=1"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes" validate:"min=1"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" validate:"min=1"`
	MaxImageDimension      int `xml:"MaxImageDimension" validate:"min=256"`
	SyncScanTimeoutSeconds int `xml:"SyncScanTimeoutSeconds" validate:"min=1"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool   `xml:"AllowFileDeletion"`
	RequireAuth       bool   `xml:"RequireAuthentication"`
	AuthToken         string `xml:"AuthToken"`
	AllowedFileTypes  string `xml:"AllowedFileTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" validate:"oneof=debug info warn error"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	DuckDBThreads           int    `xml:"DuckDBThreads" validate:"min=1"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" validate:"min=1"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 60,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			TempDirectory:     "./data/temp",
			HistoryDirectory:  "./data/history",
			MaxUploadSize:     "64M",
			EnablePersistence: true,
		},
		OCR: OCRConfig{
			Engine:               "auto",
			Languages:            "eng",
			PageSegMode:          6,
			DPI:                  300,
			TessdataPrefix:       "",
			RemoteURL:            "",
			RemoteAuthToken:      "",
			RemoteTimeoutSeconds: 60,
			KeepRawVariant:       true,
		},
		Translate: TranslateConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-flash",
			APIKey:   "",
		},
		Processing: ProcessingConfig{
			MaxConcurrentScans:     3,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			MaxImageDimension:      2600,
			SyncScanTimeoutSeconds: 120,
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
			RequireAuth:       false,
			AuthToken:         "",
			AllowedFileTypes:  ".png,.jpg,.jpeg,.gif,.bmp,.tiff",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DuckDBThreads:           4,
			DuckDBMemoryLimit:       "512MB",
			WebSocketMaxMessageSize: 65536,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- OCR Menu Detector Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks field ranges and enum values.
func (c *AppConfig) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return fmt.Errorf("invalid config: %s fails %q", first.Namespace(), first.Tag())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	// DUCKDB_TEMP_DIR override (special handling)
	if tempDir := os.Getenv("DUCKDB_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}

	// TESSDATA_PREFIX points Tesseract at its traineddata directory
	if tessdata := os.Getenv("TESSDATA_PREFIX"); tessdata != "" {
		c.OCR.TessdataPrefix = tessdata
	}

	// OCR_LANGUAGES overrides the traineddata list ("eng,jpn")
	if langs := os.Getenv("OCR_LANGUAGES"); langs != "" {
		c.OCR.Languages = langs
	}

	// OCR_REMOTE_URL enables the remote engine
	if remote := os.Getenv("OCR_REMOTE_URL"); remote != "" {
		c.OCR.RemoteURL = remote
	}

	// GEMINI_API_KEY / TRANSLATE_API_KEY enable translation
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Translate.APIKey = key
	}
	if key := os.Getenv("TRANSLATE_API_KEY"); key != "" {
		c.Translate.APIKey = key
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.TempDirectory) {
		c.Storage.TempDirectory = filepath.Join(configDir, c.Storage.TempDirectory)
	}
	if !filepath.IsAbs(c.Storage.HistoryDirectory) {
		c.Storage.HistoryDirectory = filepath.Join(configDir, c.Storage.HistoryDirectory)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AllowedExtensions returns the allowed upload extensions, lowercased,
// with leading dots stripped ("png", "jpg", ...).
func (c *AppConfig) AllowedExtensions() []string {
	parts := strings.Split(c.Security.AllowedFileTypes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		p = strings.TrimPrefix(p, ".")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// OCRLanguages returns the configured traineddata names ("eng", "spa", ...).
func (c *AppConfig) OCRLanguages() []string {
	parts := strings.Split(c.OCR.Languages, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, "eng")
	}
	return out
}

// AppName is the directory name used under XDG base directories.
const AppName = "menudetector"

// XDGDataDir returns the XDG data directory for the detector.
// On Linux: ~/.local/share/menudetector
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the detector.
// On Linux: ~/.config/menudetector
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
		c.Storage.HistoryDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
