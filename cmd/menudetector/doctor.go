package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/spf13/cobra"

	"github.com/ocr-menu-detector/backend/internal/config"
	"github.com/ocr-menu-detector/backend/internal/ocr"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that OCR engines and supporting services are usable",
		Long: `Doctor inspects the environment the detector will run in:

- whether Tesseract is installed and which languages it has
- whether the remote OCR endpoint (if configured) is reachable
- whether translation is configured
- whether the data directories are writable

The command exits non-zero when no OCR engine is available.`,
		RunE: runDoctorCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: menudetector.xml next to the executable)")

	return cmd
}

// runDoctorCmd executes the environment checks.
func runDoctorCmd(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	cfg := loadDoctorConfig(cmd, out)

	engineOK := checkTesseract(out, cfg)
	if checkRemote(out, cfg) {
		engineOK = true
	}
	checkTranslation(out, cfg)
	checkDataDir(out, cfg)

	fmt.Fprintln(out)
	if !engineOK {
		return errors.New("no OCR engine available: install tesseract or set OCR_REMOTE_URL")
	}
	fmt.Fprintln(out, "Ready to scan.")
	return nil
}

// loadDoctorConfig loads the service config if present; checks fall back to
// defaults and environment variables when it is not.
func loadDoctorConfig(cmd *cobra.Command, out io.Writer) *config.AppConfig {
	configPath, err := cmd.Flags().GetString("config")
	if err == nil && configPath == "" {
		if exePath, err := os.Executable(); err == nil {
			candidate := filepath.Join(filepath.Dir(exePath), "menudetector.xml")
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
			}
		}
	}

	if configPath == "" {
		cfg := config.DefaultConfig()
		fmt.Fprintln(out, "Config:       using defaults (no menudetector.xml found)")
		return cfg
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(out, "Config:       FAIL  %v\n", err)
		return config.DefaultConfig()
	}
	fmt.Fprintf(out, "Config:       OK    %s\n", configPath)
	return cfg
}

// checkTesseract reports whether the local Tesseract engine can run.
func checkTesseract(out io.Writer, cfg *config.AppConfig) bool {
	engine := ocr.NewTesseractEngine(cfg.OCR.TessdataPrefix)
	if !engine.Available() {
		fmt.Fprintln(out, "Tesseract:    FAIL  tesseract binary not found in PATH")
		return false
	}

	client := gosseract.NewClient()
	defer client.Close()

	fmt.Fprintf(out, "Tesseract:    OK    version %s\n", client.Version())

	langs, err := client.GetAvailableLanguages()
	if err != nil {
		fmt.Fprintf(out, "Languages:    FAIL  %v\n", err)
		return true
	}

	fmt.Fprintf(out, "Languages:    OK    %s\n", strings.Join(langs, ", "))
	for _, want := range cfg.OCRLanguages() {
		found := false
		for _, have := range langs {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(out, "              WARN  configured language %q has no traineddata installed\n", want)
		}
	}
	return true
}

// checkRemote probes the remote OCR endpoint when one is configured.
func checkRemote(out io.Writer, cfg *config.AppConfig) bool {
	url := cfg.OCR.RemoteURL
	if url == "" {
		url = os.Getenv("OCR_REMOTE_URL")
	}
	if url == "" {
		fmt.Fprintln(out, "Remote OCR:   SKIP  not configured")
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(out, "Remote OCR:   FAIL  %s unreachable: %v\n", url, err)
		return false
	}
	resp.Body.Close()

	fmt.Fprintf(out, "Remote OCR:   OK    %s (HTTP %d)\n", url, resp.StatusCode)
	return true
}

// checkTranslation reports whether a translation provider is configured.
func checkTranslation(out io.Writer, cfg *config.AppConfig) {
	if cfg.Translate.Provider != "gemini" {
		fmt.Fprintln(out, "Translation:  SKIP  provider set to none")
		return
	}
	if cfg.Translate.APIKey == "" {
		fmt.Fprintln(out, "Translation:  SKIP  GEMINI_API_KEY not set, items will not be translated")
		return
	}
	fmt.Fprintf(out, "Translation:  OK    gemini (%s)\n", cfg.Translate.Model)
}

// checkDataDir verifies the data directories exist and are writable.
func checkDataDir(out io.Writer, cfg *config.AppConfig) {
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(out, "Data dir:     FAIL  %v\n", err)
		return
	}

	probe, err := os.CreateTemp(cfg.GetUploadDir(), "doctor-*")
	if err != nil {
		fmt.Fprintf(out, "Data dir:     FAIL  uploads directory not writable: %v\n", err)
		return
	}
	probe.Close()
	os.Remove(probe.Name())

	fmt.Fprintf(out, "Data dir:     OK    %s\n", cfg.GetDataDir())
}
