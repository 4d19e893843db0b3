// Package report generates JSON summaries of bot activity from the
// ledger.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NCCommons/import-bot/pkg/store"
)

// Summary is the full activity report.
type Summary struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Total       store.Stats           `json:"total"`
	ByLanguage  []store.LanguageCount `json:"by_language"`
	RecentErrs  []ErrorEntry          `json:"recent_errors"`
}

// ErrorEntry is one failed upload in the report.
type ErrorEntry struct {
	Filename   string `json:"filename"`
	Language   string `json:"language"`
	Error      string `json:"error"`
	UploadedAt string `json:"uploaded_at"`
}

// Reporter queries the ledger for report data.
type Reporter struct {
	store *store.Store
}

// New builds a Reporter over the given store.
func New(s *store.Store) *Reporter {
	return &Reporter{store: s}
}

// Summary assembles totals, the per-language breakdown, and the most
// recent errors.
func (r *Reporter) Summary(ctx context.Context) (*Summary, error) {
	total, err := r.store.Statistics(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("overall statistics: %w", err)
	}

	byLang, err := r.store.UploadsByLanguage(ctx)
	if err != nil {
		return nil, fmt.Errorf("per-language statistics: %w", err)
	}

	recent, err := r.store.RecentErrors(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}

	summary := &Summary{
		GeneratedAt: time.Now().UTC(),
		Total:       total,
		ByLanguage:  byLang,
	}
	for _, rec := range recent {
		summary.RecentErrs = append(summary.RecentErrs, ErrorEntry{
			Filename:   rec.Filename,
			Language:   rec.Language,
			Error:      rec.Error,
			UploadedAt: rec.UploadedAt.UTC().Format(time.RFC3339),
		})
	}

	return summary, nil
}

// Save writes the summary as indented JSON to path.
func (r *Reporter) Save(ctx context.Context, path string) error {
	summary, err := r.Summary(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
