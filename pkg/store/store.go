// Package store is the bot's durable ledger: which files were imported
// into which wiki, with what outcome, and which pages were processed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Upload statuses recorded in the ledger.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate"
)

// UploadRecord is one row of the uploads ledger.
type UploadRecord struct {
	Filename   string
	Language   string
	Status     string
	Error      string
	UploadedAt time.Time
}

// Store wraps the SQLite database tracking bot activity.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at dbPath and ensures
// the schema exists. Safe to call for an already-initialized database.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

// init creates the database schema
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		language TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		uploaded_at INTEGER NOT NULL,
		UNIQUE(filename, language)
	);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_title TEXT NOT NULL,
		language TEXT NOT NULL,
		templates_found INTEGER,
		files_uploaded INTEGER,
		processed_at INTEGER NOT NULL,
		UNIQUE(page_title, language)
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_lang ON uploads(language);
	CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
	CREATE INDEX IF NOT EXISTS idx_pages_lang ON pages(language);
	`

	_, err := s.db.Exec(schema)
	return err
}

// IsFileUploaded reports whether the current record for the pair has
// status success. A missing record is simply false.
func (s *Store) IsFileUploaded(ctx context.Context, filename, language string) (bool, error) {
	query := `
		SELECT status FROM uploads
		WHERE filename = ? AND language = ?
	`

	var status string
	err := s.db.QueryRowContext(ctx, query, filename, language).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query upload: %w", err)
	}

	return status == StatusSuccess, nil
}

// RecordUpload upserts the outcome for a (filename, language) pair.
// A later attempt supersedes the earlier record; the ledger is not an
// append-only history.
func (s *Store) RecordUpload(ctx context.Context, filename, language, status, errorDetail string) error {
	query := `
		INSERT OR REPLACE INTO uploads
		(filename, language, status, error, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, filename, language, status, errorDetail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}

	return nil
}

// RecordPage upserts the processing record for a page.
func (s *Store) RecordPage(ctx context.Context, pageTitle, language string, templatesFound, filesUploaded int) error {
	query := `
		INSERT OR REPLACE INTO pages
		(page_title, language, templates_found, files_uploaded, processed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, pageTitle, language, templatesFound, filesUploaded, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record page: %w", err)
	}

	return nil
}

// Stats summarizes ledger contents.
type Stats struct {
	TotalUploads int `json:"total_uploads"`
	TotalPages   int `json:"total_pages"`
}

// Statistics returns upload and page counts, optionally filtered to one
// language.
func (s *Store) Statistics(ctx context.Context, language string) (Stats, error) {
	var stats Stats

	uploadQuery := `SELECT COUNT(*) FROM uploads WHERE status = 'success'`
	pageQuery := `SELECT COUNT(*) FROM pages`
	var uploadArgs, pageArgs []any
	if language != "" {
		uploadQuery += ` AND language = ?`
		pageQuery += ` WHERE language = ?`
		uploadArgs = append(uploadArgs, language)
		pageArgs = append(pageArgs, language)
	}

	if err := s.db.QueryRowContext(ctx, uploadQuery, uploadArgs...).Scan(&stats.TotalUploads); err != nil {
		return Stats{}, fmt.Errorf("count uploads: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, pageQuery, pageArgs...).Scan(&stats.TotalPages); err != nil {
		return Stats{}, fmt.Errorf("count pages: %w", err)
	}

	return stats, nil
}

// LanguageCount is the number of successful uploads for one language.
type LanguageCount struct {
	Language string `json:"language"`
	Uploads  int    `json:"upload_count"`
}

// UploadsByLanguage breaks successful uploads down per language.
func (s *Store) UploadsByLanguage(ctx context.Context) ([]LanguageCount, error) {
	query := `
		SELECT language, COUNT(*) FROM uploads
		WHERE status = 'success'
		GROUP BY language
		ORDER BY COUNT(*) DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query by language: %w", err)
	}
	defer rows.Close()

	var counts []LanguageCount
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.Language, &lc.Uploads); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts = append(counts, lc)
	}

	return counts, rows.Err()
}

// RecentErrors returns the most recent failed upload records, newest
// first, up to limit.
func (s *Store) RecentErrors(ctx context.Context, limit int) ([]UploadRecord, error) {
	query := `
		SELECT filename, language, status, COALESCE(error, ''), uploaded_at
		FROM uploads
		WHERE status = 'failed'
		ORDER BY uploaded_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var records []UploadRecord
	for rows.Next() {
		var r UploadRecord
		var ts int64
		if err := rows.Scan(&r.Filename, &r.Language, &r.Status, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.UploadedAt = time.Unix(ts, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
