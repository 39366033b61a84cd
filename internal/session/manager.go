// Package session runs OCR scans in the background and tracks their state.
package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocr-menu-detector/backend/internal/history"
	"github.com/ocr-menu-detector/backend/internal/imaging"
	"github.com/ocr-menu-detector/backend/internal/lang"
	"github.com/ocr-menu-detector/backend/internal/menu"
	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/ocr"
	"github.com/ocr-menu-detector/backend/internal/results"
	"github.com/ocr-menu-detector/backend/internal/translate"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// translateTimeout bounds a single translation call so a hung provider
// cannot stall the scan.
const translateTimeout = 60 * time.Second

// Options configures how the manager runs scans.
type Options struct {
	Engine         string   // preferred engine name, "auto" picks the first available
	Languages      []string // Tesseract traineddata names, e.g. "eng"
	PageSegMode    int
	DPI            int
	MaxDimension   int  // images larger than this get downscaled before OCR
	KeepRawVariant bool // also OCR the unpreprocessed image and keep the better result
	MaxConcurrent  int  // scans running at once; further scans queue as pending
	Store          results.Options
}

// Request carries per-scan overrides from the client.
type Request struct {
	TargetLanguage string
	Engine         string
	Languages      []string // overrides the configured OCR languages when set
	SkipPreprocess bool
	Rules          *models.MenuRules
}

// Manager handles active scan sessions.
type Manager struct {
	sessions   map[string]*SessionState
	mu         sync.RWMutex
	engines    *ocr.Registry
	translator translate.Translator
	rules      func() *models.MenuRules
	history    *history.Store
	tempDir    string
	opts       Options
	scanSem    chan struct{}
}

// SessionState holds the session metadata and the DuckDB-backed results.
type SessionState struct {
	Session      *models.ScanSession
	Store        *results.ScanStore
	FileName     string
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
}

// NewManager creates a scan manager. translator and historyStore may be nil;
// rules may be nil to always use the defaults.
func NewManager(engines *ocr.Registry, translator translate.Translator, rules func() *models.MenuRules, historyStore *history.Store, tempDir string, opts Options) *Manager {
	if tempDir == "" {
		tempDir = os.Getenv("DUCKDB_TEMP_DIR")
		if tempDir == "" {
			tempDir = "./data/temp"
		}
	}
	os.MkdirAll(tempDir, 0755)

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}

	return &Manager{
		sessions:   make(map[string]*SessionState),
		engines:    engines,
		translator: translator,
		rules:      rules,
		history:    historyStore,
		tempDir:    tempDir,
		opts:       opts,
		scanSem:    make(chan struct{}, opts.MaxConcurrent),
	}
}

// StartScan begins an OCR scan of a single image file.
func (m *Manager) StartScan(fileID, filePath, fileName string, req Request) (*models.ScanSession, error) {
	return m.StartMultiScan([]string{fileID}, []string{filePath}, fileName, req)
}

// StartMultiScan begins an OCR scan that treats multiple images as pages of
// one menu.
func (m *Manager) StartMultiScan(fileIDs, filePaths []string, fileName string, req Request) (*models.ScanSession, error) {
	if len(fileIDs) == 0 || len(fileIDs) != len(filePaths) {
		return nil, fmt.Errorf("mismatched fileIDs and filePaths")
	}

	// Clean up old sessions if at limit
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()

	session := models.NewScanSession(sessionID, fileIDs[0])
	if len(fileIDs) > 1 {
		session.FileIDs = fileIDs
	}
	session.TargetLanguage = req.TargetLanguage
	session.StartTime = time.Now().UnixMilli()

	state := &SessionState{
		Session:      session,
		FileName:     fileName,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	// Run the scan in a background goroutine
	go m.runScan(sessionID, fileIDs, filePaths, req)

	return session, nil
}

func (m *Manager) runScan(sessionID string, fileIDs, filePaths []string, req Request) {
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Scan %s] PANIC recovered: %v\n", sessionID[:8], r)
			m.failSession(sessionID, "setup", fmt.Sprintf("scan panicked: %v", r))
		}
	}()

	// Queue behind other scans; the session stays pending until a slot frees
	m.scanSem <- struct{}{}
	defer func() { <-m.scanSem }()

	start := time.Now()
	fmt.Printf("[Scan %s] Starting scan of %d image(s)\n", sessionID[:8], len(filePaths))

	m.setStatus(sessionID, models.ScanStatusProcessing, 0)

	engineName := req.Engine
	if engineName == "" {
		engineName = m.opts.Engine
	}
	engine, err := m.engines.FindEngine(engineName)
	if err != nil {
		fmt.Printf("[Scan %s] ERROR: %v\n", sessionID[:8], err)
		m.failSession(sessionID, "ocr", err.Error())
		return
	}
	fmt.Printf("[Scan %s] Using engine: %s\n", sessionID[:8], engine.Name())

	store, err := results.NewScanStore(m.tempDir, sessionID, m.opts.Store)
	if err != nil {
		fmt.Printf("[Scan %s] ERROR: failed to create results store: %v\n", sessionID[:8], err)
		m.failSession(sessionID, "setup", fmt.Sprintf("failed to create results store: %v", err))
		return
	}

	pageCount := len(filePaths)
	pageTexts := make([]string, 0, pageCount)

	for i, filePath := range filePaths {
		data, err := os.ReadFile(filePath)
		if err != nil {
			store.Close()
			m.failSession(sessionID, "decode", fmt.Sprintf("failed to read image %d: %v", i, err))
			return
		}

		img, format, err := imaging.Decode(data)
		if err != nil {
			store.Close()
			m.failSession(sessionID, "decode", fmt.Sprintf("failed to decode image %d: %v", i, err))
			return
		}
		img = imaging.ApplyOrientation(img, data)
		img = imaging.Downscale(img, m.opts.MaxDimension)
		if i == 0 {
			fmt.Printf("[Scan %s] Decoded %s image (%dx%d)\n",
				sessionID[:8], format, img.Bounds().Dx(), img.Bounds().Dy())
			m.setProgress(sessionID, 10)
		}

		inputs := make([]ocr.Input, 0, 2)
		if !req.SkipPreprocess {
			prepped := imaging.Preprocess(img)
			preppedPNG, err := imaging.EncodePNG(prepped)
			if err != nil {
				store.Close()
				m.failSession(sessionID, "preprocess", fmt.Sprintf("failed to encode image %d: %v", i, err))
				return
			}
			inputs = append(inputs, m.newInput(fileIDs[i], preppedPNG, req))
		}
		if req.SkipPreprocess || m.opts.KeepRawVariant {
			rawPNG, err := imaging.EncodePNG(img)
			if err != nil {
				store.Close()
				m.failSession(sessionID, "preprocess", fmt.Sprintf("failed to encode image %d: %v", i, err))
				return
			}
			inputs = append(inputs, m.newInput(fileIDs[i], rawPNG, req))
		}
		if i == 0 {
			m.setProgress(sessionID, 25)
		}

		res, err := ocr.BestOf(context.Background(), engine, inputs...)
		if err != nil {
			store.Close()
			fmt.Printf("[Scan %s] ERROR: OCR failed on image %d: %v\n", sessionID[:8], i, err)
			m.failSession(sessionID, "ocr", fmt.Sprintf("OCR failed on image %d: %v", i, err))
			return
		}

		for _, w := range res.Words {
			w.Page = i
			w.SourceID = fileIDs[i]
			store.AddWord(w)
		}
		pageTexts = append(pageTexts, res.PlainText)

		fmt.Printf("[Scan %s] Page %d/%d: %d words, %.1f%% mean confidence\n",
			sessionID[:8], i+1, pageCount, len(res.Words), res.MeanConfidence*100)

		// 25-89.9% is the OCR band; 90-100% is for extraction and finalization
		progress := 25 + float64(i+1)*64.9/float64(pageCount)
		if progress > 89.9 {
			progress = 89.9
		}
		m.setProgress(sessionID, progress)
	}

	fullText := strings.Join(pageTexts, "\n\n")
	store.SetPlainText(fullText)

	detected := lang.Detect(fullText)
	fmt.Printf("[Scan %s] Detected language: %s\n", sessionID[:8], detected)

	rules := req.Rules
	if rules == nil && m.rules != nil {
		rules = m.rules()
	}
	if rules == nil {
		rules = menu.DefaultRules()
	}

	var items []models.MenuItem
	for i, text := range pageTexts {
		pageItems := menu.ExtractItems(text, rules)
		for j := range pageItems {
			pageItems[j].Page = i
			pageItems[j].SourceID = fileIDs[i]
		}
		items = append(items, pageItems...)
	}
	fmt.Printf("[Scan %s] Extracted %d menu items\n", sessionID[:8], len(items))
	m.setProgress(sessionID, 92)

	translated := m.translateItems(sessionID, items, detected, req.TargetLanguage)
	m.setProgress(sessionID, 96)

	for _, item := range items {
		store.AddItem(item)
	}
	if err := store.Finalize(); err != nil {
		store.Close()
		m.failSession(sessionID, "finalize", fmt.Sprintf("failed to finalize results: %v", err))
		return
	}
	if err := store.LastError(); err != nil {
		m.warnSession(sessionID, "finalize", fmt.Sprintf("some results were dropped: %v", err))
	}

	elapsed := time.Since(start).Milliseconds()

	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		store.Close()
		return
	}

	state.Store = store
	state.Session.Status = models.ScanStatusComplete
	state.Session.Progress = 100
	state.Session.Engine = engine.Name()
	state.Session.DetectedLanguage = detected
	state.Session.Translated = translated
	state.Session.ItemCount = store.ItemCount()
	state.Session.WordCount = store.WordCount()
	state.Session.MeanConfidence = store.MeanConfidence()
	state.Session.ProcessingTimeMs = elapsed
	state.Session.EndTime = time.Now().UnixMilli()
	fileName := state.FileName
	sessionCopy := *state.Session
	m.mu.Unlock()

	fmt.Printf("[Scan %s] Complete: %d words, %d items in %dms\n",
		sessionID[:8], sessionCopy.WordCount, sessionCopy.ItemCount, elapsed)

	m.recordHistory(&sessionCopy, fileName, items)
}

// newInput wraps encoded image bytes with the configured OCR settings.
func (m *Manager) newInput(id string, png []byte, req Request) ocr.Input {
	languages := req.Languages
	if len(languages) == 0 {
		languages = m.opts.Languages
	}
	return ocr.Input{
		ID:        id,
		Image:     png,
		Format:    "png",
		DPI:       m.opts.DPI,
		Languages: languages,
		PSM:       m.opts.PageSegMode,
	}
}

// translateItems fills in TranslatedName/TranslatedText in place. Returns
// whether translation happened. Failures downgrade to warnings so the scan
// still completes with untranslated items.
func (m *Manager) translateItems(sessionID string, items []models.MenuItem, detected, target string) bool {
	if m.translator == nil || len(items) == 0 || !translate.ShouldTranslate(detected, target) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), translateTimeout)
	defer cancel()

	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	translatedNames, err := m.translator.TranslateLines(ctx, names, target)
	if err != nil {
		fmt.Printf("[Scan %s] WARNING: translation failed: %v\n", sessionID[:8], err)
		m.warnSession(sessionID, "translate", fmt.Sprintf("translation failed: %v", err))
		return false
	}
	for i := range items {
		items[i].TranslatedName = translatedNames[i]
	}

	fullTexts := make([]string, len(items))
	for i, item := range items {
		fullTexts[i] = item.FullText
	}
	translatedTexts, err := m.translator.TranslateLines(ctx, fullTexts, target)
	if err != nil {
		fmt.Printf("[Scan %s] WARNING: full text translation failed: %v\n", sessionID[:8], err)
		m.warnSession(sessionID, "translate", fmt.Sprintf("full text translation failed: %v", err))
		return true
	}
	for i := range items {
		items[i].TranslatedText = translatedTexts[i]
	}
	return true
}

// recordHistory persists the completed scan. Failures only log; history is
// best effort and never fails a scan.
func (m *Manager) recordHistory(session *models.ScanSession, fileName string, items []models.MenuItem) {
	if m.history == nil {
		return
	}

	rec := &history.Record{
		SessionID:        session.ID,
		FileName:         fileName,
		DetectedLanguage: session.DetectedLanguage,
		TargetLanguage:   session.TargetLanguage,
		Engine:           session.Engine,
		ItemCount:        session.ItemCount,
		WordCount:        session.WordCount,
		MeanConfidence:   session.MeanConfidence,
		DurationMs:       session.ProcessingTimeMs,
		Items:            items,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := m.history.Save(ctx, rec); err != nil {
		fmt.Printf("[Scan %s] WARNING: failed to record history: %v\n", session.ID[:8], err)
		return
	}
	if _, err := m.history.Prune(ctx, history.DefaultKeep); err != nil {
		fmt.Printf("[Scan %s] WARNING: failed to prune history: %v\n", session.ID[:8], err)
	}
}

func (m *Manager) setStatus(sessionID string, status models.ScanStatus, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Status = status
		if progress > state.Session.Progress {
			state.Session.Progress = progress
		}
	}
}

func (m *Manager) setProgress(sessionID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok && progress > state.Session.Progress {
		state.Session.Progress = progress
	}
}

func (m *Manager) failSession(sessionID, stage, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.ScanStatusError
	state.Session.EndTime = time.Now().UnixMilli()
	state.Session.Errors = append(state.Session.Errors, models.ScanError{
		Stage:  stage,
		Reason: reason,
	})
}

func (m *Manager) warnSession(sessionID, stage, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Errors = append(state.Session.Errors, models.ScanError{
		Stage:   stage,
		Reason:  reason,
		Warning: true,
	})
}

// cleanupOldSessionsIfNeeded removes oldest completed sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	var toDelete []string
	for id, state := range m.sessions {
		if state.Session.Status == models.ScanStatusComplete ||
			state.Session.Status == models.ScanStatusError {
			toDelete = append(toDelete, id)
		}
	}

	toFree := len(m.sessions) - MaxSessions + 1
	deleted := 0
	for _, id := range toDelete {
		if deleted >= toFree {
			break
		}
		if state, ok := m.sessions[id]; ok {
			if state.Store != nil {
				state.Store.Close()
			}
			delete(m.sessions, id)
			deleted++
			fmt.Printf("[Manager] Cleaned up old session %s to free memory\n", id[:8])
		}
	}
}

// CleanupOldSessions removes sessions older than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		// Only clean up completed/error sessions
		if state.Session.Status != models.ScanStatusComplete &&
			state.Session.Status != models.ScanStatusError {
			continue
		}

		// Don't clean up sessions that are actively being used
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}

		sessionTime := state.LastAccessed
		if sessionTime.IsZero() {
			sessionTime = time.Now().Add(-maxAge - time.Hour) // Force cleanup
		}

		if sessionTime.Before(cutoff) {
			if state.Store != nil {
				state.Store.Close()
			}
			delete(m.sessions, id)
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(id string) (*models.ScanSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// GetFileName returns the display name of the scanned file.
func (m *Manager) GetFileName(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return "", false
	}
	return state.FileName, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// QueryItems returns filtered, sorted and paginated menu items for a session.
func (m *Manager) QueryItems(ctx context.Context, id string, params results.ItemQuery, page, pageSize int) ([]models.MenuItem, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Store == nil {
		return nil, 0, false
	}

	items, total, err := state.Store.QueryItems(ctx, params, page, pageSize)
	if err != nil {
		if err == context.DeadlineExceeded || err == context.Canceled {
			fmt.Printf("[Manager] QueryItems timeout/cancelled for session %s\n", id[:8])
		} else {
			fmt.Printf("[Manager] QueryItems error: %v\n", err)
		}
		return nil, 0, false
	}
	return items, total, true
}

// QueryWords returns filtered, sorted and paginated words for a session.
func (m *Manager) QueryWords(ctx context.Context, id string, params results.WordQuery, page, pageSize int) ([]models.Word, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Store == nil {
		return nil, 0, false
	}

	words, total, err := state.Store.QueryWords(ctx, params, page, pageSize)
	if err != nil {
		if err == context.DeadlineExceeded || err == context.Canceled {
			fmt.Printf("[Manager] QueryWords timeout/cancelled for session %s\n", id[:8])
		} else {
			fmt.Printf("[Manager] QueryWords error: %v\n", err)
		}
		return nil, 0, false
	}
	return words, total, true
}

// AllItems returns every extracted item for a session in extraction order.
func (m *Manager) AllItems(ctx context.Context, id string) ([]models.MenuItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Store == nil {
		return nil, false
	}

	items, err := state.Store.AllItems(ctx)
	if err != nil {
		fmt.Printf("[Manager] AllItems error: %v\n", err)
		return nil, false
	}
	return items, true
}

// GetCategories returns the distinct item categories for a session.
func (m *Manager) GetCategories(ctx context.Context, id string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if state.Store == nil {
		return []string{}, true
	}

	cats, err := state.Store.Categories(ctx)
	if err != nil {
		return nil, false
	}
	return cats, true
}

// GetPlainText returns the full recognized text for a session.
func (m *Manager) GetPlainText(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Store == nil {
		return "", false
	}
	return state.Store.PlainText(), true
}

// DeleteSession removes a session and its results store.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	if state.Store != nil {
		state.Store.Close()
	}
	delete(m.sessions, id)
	return true
}

// DeleteScansForFile removes all sessions that scanned the given file.
// Returns how many sessions were removed.
func (m *Manager) DeleteScansForFile(fileID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, state := range m.sessions {
		if !sessionUsesFile(state.Session, fileID) {
			continue
		}
		if state.Store != nil {
			state.Store.Close()
		}
		delete(m.sessions, id)
		deleted++
	}
	return deleted
}

func sessionUsesFile(session *models.ScanSession, fileID string) bool {
	if session.FileID == fileID {
		return true
	}
	for _, id := range session.FileIDs {
		if id == fileID {
			return true
		}
	}
	return false
}
