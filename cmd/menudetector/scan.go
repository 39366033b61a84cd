package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocr-menu-detector/backend/internal/config"
	"github.com/ocr-menu-detector/backend/internal/history"
	"github.com/ocr-menu-detector/backend/internal/menu"
	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/ocr"
	"github.com/ocr-menu-detector/backend/internal/report"
	"github.com/ocr-menu-detector/backend/internal/session"
	"github.com/ocr-menu-detector/backend/internal/translate"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <image> [image...]",
		Short: "Scan menu images from the command line",
		Long: `Scan runs OCR over one or more menu images and prints the extracted
items. Multiple images are treated as pages of the same menu.

Examples:
  # Scan a single menu photo
  menudetector scan menu.jpg

  # Japanese menu, translate item names to English
  menudetector scan menu.jpg --lang jpn --target-lang en

  # Two-page menu as a Markdown report
  menudetector scan page1.jpg page2.jpg --format markdown --out menu.md

  # Custom extraction rules
  menudetector scan menu.jpg --rules rules.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCLI,
	}

	cmd.Flags().StringP("lang", "l", "eng",
		"OCR languages as Tesseract traineddata names, e.g. \"eng\" or \"eng,jpn\"")
	cmd.Flags().StringP("engine", "e", "auto",
		"OCR engine: auto, tesseract, or remote (remote needs OCR_REMOTE_URL)")
	cmd.Flags().StringP("target-lang", "t", "",
		"Translate item names to this ISO 639-1 language (needs GEMINI_API_KEY)")
	cmd.Flags().StringP("rules", "r", "",
		"Menu rules YAML file (default: rules.yaml in the user config directory)")
	cmd.Flags().StringP("format", "f", "text",
		"Output format: text, json, markdown, or html")
	cmd.Flags().StringP("out", "o", "",
		"Write output to a file instead of stdout")
	cmd.Flags().Bool("no-preprocess", false,
		"Skip image preprocessing (grayscale, threshold, denoise)")
	cmd.Flags().String("tessdata", "",
		"Tesseract traineddata directory (default: TESSDATA_PREFIX)")

	return cmd
}

// scanOptions carries the parsed scan command flags.
type scanOptions struct {
	paths          []string
	languages      []string
	engine         string
	targetLang     string
	rulesPath      string
	format         string
	outPath        string
	skipPreprocess bool
	tessdataPrefix string
}

func runScanCLI(cmd *cobra.Command, args []string) error {
	opts, err := parseScanFlags(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "interrupted, cancelling...")
		cancel()
	}()

	return runScanPipeline(ctx, opts)
}

// parseScanFlags builds scanOptions from cobra flags and validates inputs.
func parseScanFlags(cmd *cobra.Command, args []string) (*scanOptions, error) {
	opts := &scanOptions{paths: args}

	for _, p := range args {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("cannot read image %s: %w", p, err)
		}
	}

	lang, err := cmd.Flags().GetString("lang")
	if err != nil {
		return nil, err
	}
	for _, l := range strings.Split(lang, ",") {
		if l = strings.TrimSpace(l); l != "" {
			opts.languages = append(opts.languages, l)
		}
	}

	if opts.engine, err = cmd.Flags().GetString("engine"); err != nil {
		return nil, err
	}
	if opts.targetLang, err = cmd.Flags().GetString("target-lang"); err != nil {
		return nil, err
	}
	if opts.rulesPath, err = cmd.Flags().GetString("rules"); err != nil {
		return nil, err
	}
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return nil, err
	}
	switch opts.format {
	case "text", "json", "markdown", "md", "html":
	default:
		return nil, fmt.Errorf("unknown format %q (want text, json, markdown, or html)", opts.format)
	}
	if opts.outPath, err = cmd.Flags().GetString("out"); err != nil {
		return nil, err
	}
	if opts.skipPreprocess, err = cmd.Flags().GetBool("no-preprocess"); err != nil {
		return nil, err
	}
	if opts.tessdataPrefix, err = cmd.Flags().GetString("tessdata"); err != nil {
		return nil, err
	}
	if opts.tessdataPrefix == "" {
		opts.tessdataPrefix = os.Getenv("TESSDATA_PREFIX")
	}

	return opts, nil
}

// loadRules reads the rules file from the flag, then the user config
// directory, then falls back to the built-in defaults.
func loadRules(rulesPath string) (*models.MenuRules, error) {
	if rulesPath == "" {
		candidate := filepath.Join(config.XDGConfigDir(), "rules.yaml")
		if _, err := os.Stat(candidate); err != nil {
			return nil, nil // built-in defaults
		}
		rulesPath = candidate
	}

	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rules, err := menu.ParseRulesFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", rulesPath, err)
	}
	return rules, nil
}

// runScanPipeline runs the scan through the same session manager the server
// uses and renders the result.
func runScanPipeline(ctx context.Context, opts *scanOptions) error {
	rules, err := loadRules(opts.rulesPath)
	if err != nil {
		return err
	}

	engines := ocr.NewRegistry(ocr.NewTesseractEngine(opts.tessdataPrefix))
	if remoteURL := os.Getenv("OCR_REMOTE_URL"); remoteURL != "" {
		engines.Register(ocr.NewRemoteEngine(remoteURL, os.Getenv("OCR_REMOTE_AUTH_TOKEN"), 60*time.Second))
	}
	if _, err := engines.FindEngine(opts.engine); err != nil {
		return err
	}

	var translator translate.Translator = translate.Noop{}
	if opts.targetLang != "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			t, err := translate.NewGemini(ctx, key, "")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: translation disabled: %v\n", err)
			} else {
				translator = t
			}
		} else {
			fmt.Fprintln(os.Stderr, "Warning: --target-lang set but GEMINI_API_KEY is empty, skipping translation")
		}
	}
	defer translator.Close()

	// Record the scan in the user-level history database, best-effort.
	var historyStore *history.Store
	if hs, err := history.Open(config.XDGDataDir(), history.DefaultOptions()); err == nil {
		historyStore = hs
		defer historyStore.Close()
	}

	rulesFn := func() *models.MenuRules { return rules }
	if rules == nil {
		rulesFn = nil
	}

	mgr := session.NewManager(engines, translator, rulesFn, historyStore, os.TempDir(), session.Options{
		Engine:         opts.engine,
		Languages:      opts.languages,
		PageSegMode:    6,
		DPI:            300,
		MaxDimension:   2600,
		KeepRawVariant: true,
		MaxConcurrent:  1,
	})
	// Closes the per-session result stores.
	defer mgr.CleanupOldSessions(0)

	fileIDs := make([]string, len(opts.paths))
	for i, p := range opts.paths {
		fileIDs[i] = filepath.Base(p)
	}

	sess, err := mgr.StartMultiScan(fileIDs, opts.paths, filepath.Base(opts.paths[0]), session.Request{
		TargetLanguage: opts.targetLang,
		Engine:         opts.engine,
		SkipPreprocess: opts.skipPreprocess,
	})
	if err != nil {
		return err
	}

	final, err := waitForScan(ctx, mgr, sess.ID, opts.format == "text" && opts.outPath == "")
	if err != nil {
		return err
	}

	items, _ := mgr.AllItems(ctx, final.ID)
	plainText, _ := mgr.GetPlainText(final.ID)

	out := os.Stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return renderScan(out, opts.format, final, items, plainText, opts.paths)
}

// waitForScan polls the session until it finishes. With progress enabled it
// keeps a single status line updated on stderr.
func waitForScan(ctx context.Context, mgr *session.Manager, sessionID string, showProgress bool) (*models.ScanSession, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.New("scan interrupted")
		case <-ticker.C:
			sess, ok := mgr.GetSession(sessionID)
			if !ok {
				return nil, errors.New("scan session disappeared")
			}
			if showProgress {
				fmt.Fprintf(os.Stderr, "\rScanning... %3.0f%%", sess.Progress)
			}
			switch sess.Status {
			case models.ScanStatusComplete:
				if showProgress {
					fmt.Fprintf(os.Stderr, "\r                    \r")
				}
				return sess, nil
			case models.ScanStatusError:
				if showProgress {
					fmt.Fprintln(os.Stderr)
				}
				return nil, errors.New(scanErrorReason(sess))
			}
		}
	}
}

// scanErrorReason picks the first non-warning failure from the session.
func scanErrorReason(sess *models.ScanSession) string {
	for _, e := range sess.Errors {
		if !e.Warning {
			return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
		}
	}
	return "scan failed"
}

// renderScan writes the scan result in the requested format.
func renderScan(out io.Writer, format string, sess *models.ScanSession, items []models.MenuItem, plainText string, paths []string) error {
	switch format {
	case "json":
		payload := struct {
			Files            []string          `json:"files"`
			DetectedLanguage string            `json:"detected_language"`
			Engine           string            `json:"engine"`
			Items            []models.MenuItem `json:"items"`
			TotalItems       int               `json:"total_items"`
			Confidence       float64           `json:"confidence"`
			RawText          string            `json:"raw_text"`
			Translated       bool              `json:"translated"`
			ProcessingTimeMs int64             `json:"processing_time_ms"`
		}{
			Files:            paths,
			DetectedLanguage: sess.DetectedLanguage,
			Engine:           sess.Engine,
			Items:            items,
			TotalItems:       len(items),
			Confidence:       sess.MeanConfidence,
			RawText:          plainText,
			Translated:       sess.Translated,
			ProcessingTimeMs: sess.ProcessingTimeMs,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)

	case "markdown", "md":
		_, err := report.NewMarkdownWriter(out).Write(buildCLIReport(sess, items, paths))
		return err

	case "html":
		_, err := report.NewHTMLWriter(out).Write(buildCLIReport(sess, items, paths))
		return err

	default:
		return renderText(out, sess, items)
	}
}

// buildCLIReport assembles report data from the finished session.
func buildCLIReport(sess *models.ScanSession, items []models.MenuItem, paths []string) *report.Data {
	scannedAt := time.Now()
	if sess.EndTime > 0 {
		scannedAt = time.UnixMilli(sess.EndTime)
	}

	var warnings []string
	for _, e := range sess.Errors {
		if e.Warning {
			warnings = append(warnings, fmt.Sprintf("%s: %s", e.Stage, e.Reason))
		}
	}

	return &report.Data{
		FileName:         filepath.Base(paths[0]),
		SessionID:        sess.ID,
		ScannedAt:        scannedAt,
		DetectedLanguage: sess.DetectedLanguage,
		TargetLanguage:   sess.TargetLanguage,
		Engine:           sess.Engine,
		PageCount:        len(paths),
		WordCount:        sess.WordCount,
		MeanConfidence:   sess.MeanConfidence,
		DurationMs:       sess.ProcessingTimeMs,
		Items:            items,
		Warnings:         warnings,
	}
}

// renderText prints an aligned item table followed by a summary line.
func renderText(out io.Writer, sess *models.ScanSession, items []models.MenuItem) error {
	if len(items) == 0 {
		fmt.Fprintln(out, "No menu items detected.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if sess.Translated {
		fmt.Fprintln(w, "ITEM\tTRANSLATED\tPRICE\tCATEGORY\tCONF")
	} else {
		fmt.Fprintln(w, "ITEM\tPRICE\tCATEGORY\tCONF")
	}
	for _, item := range items {
		price := ""
		if item.Price != "" {
			price = item.Currency + item.Price
		}
		if sess.Translated {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n", item.Name, item.TranslatedName, price, item.Category, item.Confidence)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", item.Name, price, item.Category, item.Confidence)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	lang := sess.DetectedLanguage
	if lang == "" {
		lang = "unknown"
	}
	fmt.Fprintf(out, "\n%d items, language %s, confidence %.0f%%, %s via %s\n",
		len(items), lang, sess.MeanConfidence*100,
		(time.Duration(sess.ProcessingTimeMs) * time.Millisecond).Round(time.Millisecond),
		sess.Engine)
	return nil
}
