// Package results stores recognized words and extracted menu items in a
// per-session DuckDB file so large multi-page scans never have to live in RAM.
package results

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/ocr-menu-detector/backend/internal/models"
)

// Options tunes the underlying DuckDB instance.
type Options struct {
	MemoryLimit string // e.g. "512MB"; empty uses the default
	Threads     int    // 0 uses the default
}

const (
	defaultMemoryLimit = "512MB"
	defaultThreads     = 4
	wordBatchSize      = 4096
)

// ScanStore holds the OCR output of one scan session: every recognized word
// with its bounding box, plus the menu items extracted from them. Writes are
// batched through the DuckDB Appender; queries are paginated and filtered.
type ScanStore struct {
	db     *sql.DB
	dbPath string

	wordCount int
	itemCount int
	confSum   float64

	wordBatch []models.Word
	itemBatch []models.MenuItem
	plainText string
	lastError error // stores the last flush error

	// Cache for total counts by filter to avoid repeated COUNT queries
	countCache   map[string]int
	countCacheMu sync.RWMutex

	// Semaphore to limit concurrent queries (prevents memory spikes while a
	// client polls words and items at the same time)
	querySem chan struct{}
}

// NewScanStore creates a DuckDB-backed store for one scan session in the
// given temp directory. The file is removed again by Close.
func NewScanStore(tempDir, sessionID string, opts Options) (*ScanStore, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("scan_%s.duckdb", sessionID))
	return NewScanStoreAtPath(dbPath, opts)
}

// NewScanStoreAtPath creates a DuckDB-backed store at a specific path.
func NewScanStoreAtPath(dbPath string, opts Options) (*ScanStore, error) {
	memLimit := opts.MemoryLimit
	if memLimit == "" {
		memLimit = defaultMemoryLimit
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = defaultThreads
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", memLimit),
			fmt.Sprintf("PRAGMA threads=%d", threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[ScanStore] Pragma error: %v\n", err)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE words (
			id         INTEGER PRIMARY KEY,
			page       INTEGER NOT NULL,
			word       VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL,
			line_no    INTEGER NOT NULL,
			x0         INTEGER NOT NULL,
			y0         INTEGER NOT NULL,
			x1         INTEGER NOT NULL,
			y1         INTEGER NOT NULL,
			source_id  VARCHAR
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create words table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE items (
			id              INTEGER PRIMARY KEY,
			page            INTEGER NOT NULL,
			name            VARCHAR NOT NULL,
			description     VARCHAR,
			price           VARCHAR,
			price_cents     BIGINT,
			currency        VARCHAR,
			category        VARCHAR,
			full_text       VARCHAR,
			translated_name VARCHAR,
			translated_text VARCHAR,
			confidence      DOUBLE,
			source_id       VARCHAR
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create items table: %w", err)
	}

	// Indexes are created in Finalize() after all inserts; creating them up
	// front slows the append phase.

	return &ScanStore{
		db:         db,
		dbPath:     dbPath,
		wordBatch:  make([]models.Word, 0, wordBatchSize),
		itemBatch:  make([]models.MenuItem, 0, 64),
		countCache: make(map[string]int),
		querySem:   make(chan struct{}, 3), // Max 3 concurrent queries
	}, nil
}

// AddWord adds a recognized word. Words are batched for efficient insertion.
func (ss *ScanStore) AddWord(w models.Word) {
	ss.wordBatch = append(ss.wordBatch, w)
	ss.confSum += w.Confidence
	ss.wordCount++

	if len(ss.wordBatch) >= wordBatchSize {
		if err := ss.flushWords(); err != nil {
			ss.lastError = err
			fmt.Printf("[ScanStore] word flush error: %v\n", err)
		}
	}
}

// AddItem adds an extracted menu item. Items are flushed in Finalize.
func (ss *ScanStore) AddItem(item models.MenuItem) {
	ss.itemBatch = append(ss.itemBatch, item)
	ss.itemCount++
}

// SetPlainText records the full recognized text of the scan.
func (ss *ScanStore) SetPlainText(text string) {
	ss.plainText = text
}

// PlainText returns the full recognized text of the scan.
func (ss *ScanStore) PlainText() string {
	return ss.plainText
}

// LastError returns the last error that occurred during a batch flush.
func (ss *ScanStore) LastError() error {
	return ss.lastError
}

// flushWords writes the current word batch using the native Appender API.
func (ss *ScanStore) flushWords() error {
	if len(ss.wordBatch) == 0 {
		return nil
	}

	conn, err := ss.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "words")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := ss.wordCount - len(ss.wordBatch)
		for i, w := range ss.wordBatch {
			err := appender.AppendRow(
				int32(baseID+i),
				int32(w.Page),
				w.Text,
				w.Confidence,
				int32(w.LineNo),
				int32(w.Box.X0),
				int32(w.Box.Y0),
				int32(w.Box.X1),
				int32(w.Box.Y1),
				w.SourceID,
			)
			if err != nil {
				return fmt.Errorf("failed to append word %d: %w", i, err)
			}
		}

		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	ss.wordBatch = ss.wordBatch[:0]
	return nil
}

// flushItems writes the item batch using the native Appender API.
func (ss *ScanStore) flushItems() error {
	if len(ss.itemBatch) == 0 {
		return nil
	}

	conn, err := ss.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "items")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := ss.itemCount - len(ss.itemBatch)
		for i, item := range ss.itemBatch {
			err := appender.AppendRow(
				int32(baseID+i),
				int32(item.Page),
				item.Name,
				item.Description,
				item.Price,
				item.PriceCents,
				item.Currency,
				item.Category,
				item.FullText,
				item.TranslatedName,
				item.TranslatedText,
				item.Confidence,
				item.SourceID,
			)
			if err != nil {
				return fmt.Errorf("failed to append item %d: %w", i, err)
			}
		}

		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	ss.itemBatch = ss.itemBatch[:0]
	return nil
}

// Finalize flushes pending rows and creates indexes for querying.
func (ss *ScanStore) Finalize() error {
	if err := ss.flushWords(); err != nil {
		return err
	}
	if err := ss.flushItems(); err != nil {
		return err
	}

	start := time.Now()
	if _, err := ss.db.Exec("CREATE INDEX idx_word_conf ON words(confidence)"); err != nil {
		return fmt.Errorf("idx_word_conf creation failed: %w", err)
	}
	if _, err := ss.db.Exec("CREATE INDEX idx_item_cat ON items(category)"); err != nil {
		fmt.Printf("[ScanStore] Warning: idx_item_cat creation failed: %v\n", err)
	}
	fmt.Printf("[ScanStore] Finalized %d words, %d items in %v\n", ss.wordCount, ss.itemCount, time.Since(start))
	return nil
}

// WordCount returns the total number of recognized words.
func (ss *ScanStore) WordCount() int {
	return ss.wordCount
}

// ItemCount returns the total number of extracted menu items.
func (ss *ScanStore) ItemCount() int {
	return ss.itemCount
}

// MeanConfidence returns the average confidence across all words, in [0, 1].
func (ss *ScanStore) MeanConfidence() float64 {
	if ss.wordCount == 0 {
		return 0
	}
	return ss.confSum / float64(ss.wordCount)
}

// WordQuery defines filters and sorting for word queries.
type WordQuery struct {
	Search        string
	Page          int // 0 means all pages
	MinConfidence float64
	SortColumn    string
	SortDirection string // "asc" or "desc"
}

// ItemQuery defines filters and sorting for menu item queries.
type ItemQuery struct {
	Search        string
	Category      string
	Page          int // 0 means all pages
	MinConfidence float64
	SortColumn    string
	SortDirection string // "asc" or "desc"
}

// QueryWords returns filtered, sorted, and paginated words plus the total
// match count.
func (ss *ScanStore) QueryWords(ctx context.Context, params WordQuery, page, pageSize int) ([]models.Word, int, error) {
	select {
	case ss.querySem <- struct{}{}:
		defer func() { <-ss.querySem }()
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	where, args := buildWordWhere(params)

	total, err := ss.cachedCount(ctx, "words", where, args)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Word{}, 0, nil
	}

	sortCol := "id"
	switch params.SortColumn {
	case "confidence":
		sortCol = "confidence"
	case "line":
		sortCol = "line_no"
	case "page":
		sortCol = "page"
	}
	dir := "ASC"
	if params.SortDirection == "desc" {
		dir = "DESC"
	}

	offset := (page - 1) * pageSize
	query := "SELECT page, word, confidence, line_no, x0, y0, x1, y1, source_id FROM words"
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d OFFSET %d", sortCol, dir, dir, pageSize, offset)

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("word query failed: %w", err)
	}
	defer rows.Close()

	words := make([]models.Word, 0, pageSize)
	for rows.Next() {
		w, err := scanWord(rows)
		if err != nil {
			return nil, 0, err
		}
		words = append(words, w)
	}
	return words, total, rows.Err()
}

// QueryItems returns filtered, sorted, and paginated menu items plus the
// total match count.
func (ss *ScanStore) QueryItems(ctx context.Context, params ItemQuery, page, pageSize int) ([]models.MenuItem, int, error) {
	select {
	case ss.querySem <- struct{}{}:
		defer func() { <-ss.querySem }()
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	where, args := buildItemWhere(params)

	total, err := ss.cachedCount(ctx, "items", where, args)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.MenuItem{}, 0, nil
	}

	sortCol := "id"
	switch params.SortColumn {
	case "name":
		sortCol = "name"
	case "price":
		sortCol = "price_cents"
	case "category":
		sortCol = "category"
	case "confidence":
		sortCol = "confidence"
	}
	dir := "ASC"
	if params.SortDirection == "desc" {
		dir = "DESC"
	}

	offset := (page - 1) * pageSize
	query := itemColumns + " FROM items"
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d OFFSET %d", sortCol, dir, dir, pageSize, offset)

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("item query failed: %w", err)
	}
	defer rows.Close()

	items := make([]models.MenuItem, 0, pageSize)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// AllItems returns every extracted item in extraction order. Used for the
// report, the CSV export, and the one-shot OCR response.
func (ss *ScanStore) AllItems(ctx context.Context) ([]models.MenuItem, error) {
	select {
	case ss.querySem <- struct{}{}:
		defer func() { <-ss.querySem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rows, err := ss.db.QueryContext(ctx, itemColumns+" FROM items ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.MenuItem, 0, ss.itemCount)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Categories returns the distinct item categories in alphabetical order.
func (ss *ScanStore) Categories(ctx context.Context) ([]string, error) {
	rows, err := ss.db.QueryContext(ctx, "SELECT DISTINCT category FROM items WHERE category IS NOT NULL AND category != '' ORDER BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, err
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// ClearCountCache clears the count cache (call when data changes).
func (ss *ScanStore) ClearCountCache() {
	ss.countCacheMu.Lock()
	ss.countCache = make(map[string]int)
	ss.countCacheMu.Unlock()
}

// cachedCount returns COUNT(*) for the given table and filter, caching the
// result per filter so repeated pagination doesn't rescan.
func (ss *ScanStore) cachedCount(ctx context.Context, table, where string, args []interface{}) (int, error) {
	cacheKey := table + "|" + where + "|" + fmt.Sprint(args...)

	ss.countCacheMu.RLock()
	total, found := ss.countCache[cacheKey]
	ss.countCacheMu.RUnlock()
	if found {
		return total, nil
	}

	countQuery := "SELECT COUNT(*) FROM " + table
	if where != "" {
		countQuery += " WHERE " + where
	}
	if err := ss.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}

	ss.countCacheMu.Lock()
	ss.countCache[cacheKey] = total
	ss.countCacheMu.Unlock()
	return total, nil
}

func buildWordWhere(params WordQuery) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if params.Search != "" {
		clauses = append(clauses, "word ILIKE ?")
		args = append(args, "%"+params.Search+"%")
	}
	if params.Page > 0 {
		clauses = append(clauses, "page = ?")
		args = append(args, params.Page)
	}
	if params.MinConfidence > 0 {
		clauses = append(clauses, "confidence >= ?")
		args = append(args, params.MinConfidence)
	}

	return strings.Join(clauses, " AND "), args
}

func buildItemWhere(params ItemQuery) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if params.Search != "" {
		pattern := "%" + params.Search + "%"
		clauses = append(clauses, "(name ILIKE ? OR description ILIKE ? OR full_text ILIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if params.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, params.Category)
	}
	if params.Page > 0 {
		clauses = append(clauses, "page = ?")
		args = append(args, params.Page)
	}
	if params.MinConfidence > 0 {
		clauses = append(clauses, "confidence >= ?")
		args = append(args, params.MinConfidence)
	}

	return strings.Join(clauses, " AND "), args
}

// Close closes the database and removes the temp file.
func (ss *ScanStore) Close() error {
	if ss.db != nil {
		ss.db.Close()
	}
	if ss.dbPath != "" {
		os.Remove(ss.dbPath)
	}
	return nil
}

const itemColumns = "SELECT page, name, description, price, price_cents, currency, category, full_text, translated_name, translated_text, confidence, source_id"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWord(s scanner) (models.Word, error) {
	var w models.Word
	var srcID sql.NullString
	err := s.Scan(&w.Page, &w.Text, &w.Confidence, &w.LineNo, &w.Box.X0, &w.Box.Y0, &w.Box.X1, &w.Box.Y1, &srcID)
	if err != nil {
		return models.Word{}, err
	}
	w.SourceID = srcID.String
	return w, nil
}

func scanItem(s scanner) (models.MenuItem, error) {
	var item models.MenuItem
	var desc, price, currency, category, fullText, trName, trText, srcID sql.NullString
	var cents sql.NullInt64
	var conf sql.NullFloat64
	err := s.Scan(&item.Page, &item.Name, &desc, &price, &cents, &currency, &category, &fullText, &trName, &trText, &conf, &srcID)
	if err != nil {
		return models.MenuItem{}, err
	}
	item.Description = desc.String
	item.Price = price.String
	item.PriceCents = cents.Int64
	item.Currency = currency.String
	item.Category = category.String
	item.FullText = fullText.String
	item.TranslatedName = trName.String
	item.TranslatedText = trText.String
	item.Confidence = conf.Float64
	item.SourceID = srcID.String
	return item, nil
}
