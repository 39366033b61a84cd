// Package history provides SQLite-based persistence of completed scans, so
// past menu extractions survive a restart even though the per-session DuckDB
// files do not.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ocr-menu-detector/backend/internal/models"
)

// DefaultKeep is how many scan records Prune retains by default.
const DefaultKeep = 200

// Store persists completed scan summaries in a single SQLite file.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Record is one completed scan as stored in history. Items are kept as JSON
// in the database and only decoded when a single record is fetched.
type Record struct {
	ID               int64             `json:"id"`
	SessionID        string            `json:"sessionId"`
	FileName         string            `json:"fileName"`
	DetectedLanguage string            `json:"detectedLanguage"`
	TargetLanguage   string            `json:"targetLanguage,omitempty"`
	Engine           string            `json:"engine"`
	ItemCount        int               `json:"itemCount"`
	WordCount        int               `json:"wordCount"`
	MeanConfidence   float64           `json:"meanConfidence"`
	DurationMs       int64             `json:"durationMs"`
	Items            []models.MenuItem `json:"items,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// Open opens or creates the history database in the given directory.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, "history.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		file_name TEXT,
		detected_language TEXT,
		target_language TEXT,
		engine TEXT,
		item_count INTEGER DEFAULT 0,
		word_count INTEGER DEFAULT 0,
		mean_confidence REAL DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		items_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Save inserts or updates the record for a scan session.
// Uses UPSERT so re-running a session overwrites its previous entry.
func (s *Store) Save(ctx context.Context, rec *Record) (int64, error) {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize items: %w", err)
	}

	query := `
	INSERT INTO scans (session_id, file_name, detected_language, target_language, engine,
		item_count, word_count, mean_confidence, duration_ms, items_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		file_name = excluded.file_name,
		detected_language = excluded.detected_language,
		target_language = excluded.target_language,
		engine = excluded.engine,
		item_count = excluded.item_count,
		word_count = excluded.word_count,
		mean_confidence = excluded.mean_confidence,
		duration_ms = excluded.duration_ms,
		items_json = excluded.items_json,
		created_at = CURRENT_TIMESTAMP
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.FileName,
		rec.DetectedLanguage,
		rec.TargetLanguage,
		rec.Engine,
		rec.ItemCount,
		rec.WordCount,
		rec.MeanConfidence,
		rec.DurationMs,
		string(itemsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan record: %w", err)
	}

	return result.LastInsertId()
}

// Recent returns the most recent scan records, newest first, without their
// item lists. Use Get to load a full record.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, session_id, file_name, detected_language, target_language, engine,
		item_count, word_count, mean_confidence, duration_ms, created_at
	FROM scans
	ORDER BY created_at DESC, id DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var target sql.NullString
		var timestamp string

		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.FileName,
			&rec.DetectedLanguage,
			&target,
			&rec.Engine,
			&rec.ItemCount,
			&rec.WordCount,
			&rec.MeanConfidence,
			&rec.DurationMs,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		rec.TargetLanguage = target.String
		rec.CreatedAt = parseTimestamp(timestamp)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// Get retrieves a full scan record, including items, by database ID.
// Returns nil (no error) when the ID is unknown.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	query := `
	SELECT id, session_id, file_name, detected_language, target_language, engine,
		item_count, word_count, mean_confidence, duration_ms, items_json, created_at
	FROM scans
	WHERE id = ?
	`

	var rec Record
	var target sql.NullString
	var itemsJSON string
	var timestamp string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.FileName,
		&rec.DetectedLanguage,
		&target,
		&rec.Engine,
		&rec.ItemCount,
		&rec.WordCount,
		&rec.MeanConfidence,
		&rec.DurationMs,
		&itemsJSON,
		&timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan record: %w", err)
	}

	rec.TargetLanguage = target.String
	rec.CreatedAt = parseTimestamp(timestamp)

	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &rec.Items); err != nil {
			return nil, fmt.Errorf("failed to parse items: %w", err)
		}
	}

	return &rec, nil
}

// GetBySession retrieves a full scan record by session ID.
// Returns nil (no error) when the session has no history entry.
func (s *Store) GetBySession(ctx context.Context, sessionID string) (*Record, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM scans WHERE session_id = ?", sessionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return s.Get(ctx, id)
}

// Prune deletes the oldest records beyond keep. Returns the number removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}

	query := `
	DELETE FROM scans
	WHERE id NOT IN (
		SELECT id FROM scans ORDER BY created_at DESC, id DESC LIMIT ?
	)
	`

	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scan history: %w", err)
	}
	return result.RowsAffected()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on
// configuration. Returns zero time if no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
