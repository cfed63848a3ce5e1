package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"impactmap/internal/config"
	"impactmap/internal/lang"
	"impactmap/internal/logging"
)

// ParseCacheDB is the persistent parse-result store, keyed by
// (path, mtime_nanos, size). A row whose key no longer matches the file on
// disk is simply never hit again and gets replaced on the next parse.
type ParseCacheDB struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// OpenParseCache opens or creates the sqlite parse cache under
// <workspace>/.impactmap/impactmap.db.
func OpenParseCache(workspacePath string, logger *logging.Logger) (*ParseCacheDB, error) {
	dir := filepath.Join(workspacePath, config.ToolDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s directory: %w", config.ToolDir, err)
	}

	dbPath := filepath.Join(dir, "impactmap.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening parse cache: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS parse_cache (
			path        TEXT PRIMARY KEY,
			mtime_nanos INTEGER NOT NULL,
			size        INTEGER NOT NULL,
			parsed_json TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating parse_cache table: %w", err)
	}

	return &ParseCacheDB{conn: conn, logger: logger, dbPath: dbPath}, nil
}

// Get returns the cached parse result when the stored key still matches
func (db *ParseCacheDB) Get(path string, mtimeNanos, size int64) (*lang.ParsedFile, bool, error) {
	var parsedJSON string
	err := db.conn.QueryRow(`
		SELECT parsed_json FROM parse_cache
		WHERE path = ? AND mtime_nanos = ? AND size = ?
	`, path, mtimeNanos, size).Scan(&parsedJSON)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("parse cache lookup failed: %w", err)
	}

	var pf lang.ParsedFile
	if err := json.Unmarshal([]byte(parsedJSON), &pf); err != nil {
		// corrupt row: drop it and treat as a miss
		_, _ = db.conn.Exec("DELETE FROM parse_cache WHERE path = ?", path)
		return nil, false, nil
	}
	return &pf, true, nil
}

// Put stores a parse result, replacing any previous row for the path
func (db *ParseCacheDB) Put(path string, mtimeNanos, size int64, pf *lang.ParsedFile) error {
	parsedJSON, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("encoding parse result: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT OR REPLACE INTO parse_cache (path, mtime_nanos, size, parsed_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, path, mtimeNanos, size, string(parsedJSON), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing parse cache: %w", err)
	}
	return nil
}

// Stats returns the entry count
func (db *ParseCacheDB) Stats() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM parse_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("parse cache stats failed: %w", err)
	}
	return count, nil
}

// Clear removes every cached entry
func (db *ParseCacheDB) Clear() error {
	_, err := db.conn.Exec("DELETE FROM parse_cache")
	if err != nil {
		return fmt.Errorf("clearing parse cache: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (db *ParseCacheDB) Close() error {
	return db.conn.Close()
}
