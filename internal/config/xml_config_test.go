package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8090 {
		t.Errorf("Expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Server.BindAddress != "0.0.0.0" {
		t.Errorf("Expected bind address 0.0.0.0, got %s", cfg.Server.BindAddress)
	}
	if cfg.Server.BodyLimit != "64M" {
		t.Errorf("Expected body limit 64M, got %s", cfg.Server.BodyLimit)
	}
	if cfg.OCR.Engine != "auto" {
		t.Errorf("Expected OCR engine auto, got %s", cfg.OCR.Engine)
	}
	if cfg.OCR.PageSegMode != 6 || cfg.OCR.DPI != 300 {
		t.Errorf("Expected PSM 6 and DPI 300, got %d and %d", cfg.OCR.PageSegMode, cfg.OCR.DPI)
	}
	if !cfg.OCR.KeepRawVariant {
		t.Error("Expected raw variant racing to be on by default")
	}
	if cfg.Translate.Provider != "gemini" || cfg.Translate.Model != "gemini-1.5-flash" {
		t.Errorf("Expected gemini defaults, got %s / %s", cfg.Translate.Provider, cfg.Translate.Model)
	}
	if cfg.Processing.MaxConcurrentScans != 3 {
		t.Errorf("Expected 3 concurrent scans, got %d", cfg.Processing.MaxConcurrentScans)
	}
	if cfg.Processing.MaxImageDimension != 2600 {
		t.Errorf("Expected max image dimension 2600, got %d", cfg.Processing.MaxImageDimension)
	}
	if cfg.Advanced.LogLevel != "info" {
		t.Errorf("Expected log level info, got %s", cfg.Advanced.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Run("rejects out-of-range port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Fatal("Expected validation error for port 70000, got nil")
		}
	})

	t.Run("rejects unknown engine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OCR.Engine = "gpt4"
		err := cfg.Validate()
		if err == nil {
			t.Fatal("Expected validation error for unknown engine, got nil")
		}
		if !strings.Contains(err.Error(), "oneof") {
			t.Errorf("Expected oneof failure, got %v", err)
		}
	})

	t.Run("rejects low DPI", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.OCR.DPI = 50
		if err := cfg.Validate(); err == nil {
			t.Fatal("Expected validation error for DPI 50, got nil")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("creates default file when missing", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.xml")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected config file to be written: %v", err)
		}
		if cfg.OCR.Engine != "auto" {
			t.Errorf("Expected default engine auto, got %s", cfg.OCR.Engine)
		}
		if want := filepath.Join(dir, "data", "uploads"); cfg.Storage.UploadsDirectory != want {
			t.Errorf("Expected uploads directory %s, got %s", want, cfg.Storage.UploadsDirectory)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read written config: %v", err)
		}
		if !strings.Contains(string(data), "<MenuDetector>") {
			t.Error("Expected MenuDetector root element in written config")
		}
		if !strings.Contains(string(data), "auto-generated") {
			t.Error("Expected generation comment in written config")
		}
	})

	t.Run("round-trips a saved config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.xml")

		cfg := DefaultConfig()
		cfg.OCR.Engine = "tesseract"
		cfg.OCR.DPI = 450
		cfg.Translate.Model = "gemini-1.5-pro"
		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if loaded.OCR.Engine != "tesseract" {
			t.Errorf("Expected engine tesseract, got %s", loaded.OCR.Engine)
		}
		if loaded.OCR.DPI != 450 {
			t.Errorf("Expected DPI 450, got %d", loaded.OCR.DPI)
		}
		if loaded.Translate.Model != "gemini-1.5-pro" {
			t.Errorf("Expected model gemini-1.5-pro, got %s", loaded.Translate.Model)
		}
	})

	t.Run("rejects malformed XML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.xml")
		if err := os.WriteFile(path, []byte("<MenuDetector><unclosed"), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("Expected parse error, got nil")
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.xml")
		cfg := DefaultConfig()
		cfg.Advanced.LogLevel = "verbose"
		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("Expected validation error, got nil")
		}
		if !strings.Contains(err.Error(), "invalid config") {
			t.Errorf("Expected validation failure, got %v", err)
		}
	})

	t.Run("applies environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9321")
		t.Setenv("DATA_DIR", "/custom/data")
		t.Setenv("DUCKDB_TEMP_DIR", "/fast/tmp")
		t.Setenv("TESSDATA_PREFIX", "/usr/share/tessdata")
		t.Setenv("OCR_LANGUAGES", "eng,jpn")
		t.Setenv("OCR_REMOTE_URL", "http://ocr.internal/v1")
		t.Setenv("GEMINI_API_KEY", "gemini-key")
		t.Setenv("TRANSLATE_API_KEY", "translate-key")

		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.xml"))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9321 {
			t.Errorf("Expected PORT override 9321, got %d", cfg.Server.Port)
		}
		if cfg.Storage.DataDirectory != "/custom/data" {
			t.Errorf("Expected DATA_DIR override, got %s", cfg.Storage.DataDirectory)
		}
		if cfg.Storage.TempDirectory != "/fast/tmp" {
			t.Errorf("Expected DUCKDB_TEMP_DIR override, got %s", cfg.Storage.TempDirectory)
		}
		if cfg.OCR.TessdataPrefix != "/usr/share/tessdata" {
			t.Errorf("Expected TESSDATA_PREFIX override, got %s", cfg.OCR.TessdataPrefix)
		}
		if cfg.OCR.Languages != "eng,jpn" {
			t.Errorf("Expected OCR_LANGUAGES override, got %s", cfg.OCR.Languages)
		}
		if cfg.OCR.RemoteURL != "http://ocr.internal/v1" {
			t.Errorf("Expected OCR_REMOTE_URL override, got %s", cfg.OCR.RemoteURL)
		}
		if cfg.Translate.APIKey != "translate-key" {
			t.Errorf("Expected TRANSLATE_API_KEY to win over GEMINI_API_KEY, got %s", cfg.Translate.APIKey)
		}
	})
}

func TestGetServerAddr(t *testing.T) {
	if got := DefaultConfig().GetServerAddr(); got != "0.0.0.0:8090" {
		t.Errorf("Expected 0.0.0.0:8090, got %s", got)
	}
}

func TestAllowedExtensions(t *testing.T) {
	cfg := DefaultConfig()
	exts := cfg.AllowedExtensions()
	want := []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff"}
	if len(exts) != len(want) {
		t.Fatalf("Expected %d extensions, got %d: %v", len(want), len(exts), exts)
	}
	for i, w := range want {
		if exts[i] != w {
			t.Errorf("Expected extension %s at %d, got %s", w, i, exts[i])
		}
	}

	cfg.Security.AllowedFileTypes = " .PNG, jpg ,,"
	exts = cfg.AllowedExtensions()
	if len(exts) != 2 || exts[0] != "png" || exts[1] != "jpg" {
		t.Errorf("Expected normalized [png jpg], got %v", exts)
	}
}

func TestOCRLanguages(t *testing.T) {
	cfg := DefaultConfig()
	if langs := cfg.OCRLanguages(); len(langs) != 1 || langs[0] != "eng" {
		t.Errorf("Expected [eng], got %v", langs)
	}

	cfg.OCR.Languages = "eng, jpn"
	if langs := cfg.OCRLanguages(); len(langs) != 2 || langs[1] != "jpn" {
		t.Errorf("Expected [eng jpn], got %v", langs)
	}

	cfg.OCR.Languages = " , "
	if langs := cfg.OCRLanguages(); len(langs) != 1 || langs[0] != "eng" {
		t.Errorf("Expected fallback [eng], got %v", langs)
	}
}

func TestXDGDirs(t *testing.T) {
	// adrg/xdg resolves its base directories at init, so only the
	// application suffix is stable across environments.
	if got := filepath.Base(XDGDataDir()); got != AppName {
		t.Errorf("Expected data dir to end in %s, got %s", AppName, got)
	}
	if got := filepath.Base(XDGConfigDir()); got != AppName {
		t.Errorf("Expected config dir to end in %s, got %s", AppName, got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.DataDirectory = filepath.Join(dir, "data")
	cfg.Storage.UploadsDirectory = filepath.Join(dir, "data", "uploads")
	cfg.Storage.TempDirectory = filepath.Join(dir, "data", "temp")
	cfg.Storage.HistoryDirectory = filepath.Join(dir, "data", "history")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, d := range []string{
		cfg.Storage.DataDirectory,
		cfg.Storage.UploadsDirectory,
		cfg.Storage.TempDirectory,
		cfg.Storage.HistoryDirectory,
	} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s to exist", d)
		}
	}
}
