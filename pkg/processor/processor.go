// Package processor walks target-wiki pages that carry NC markers,
// imports the referenced files, and rewrites the markers into embedded
// file syntax.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NCCommons/import-bot/pkg/uploader"
	"github.com/NCCommons/import-bot/pkg/wikitext"
)

// Wiki is the slice of the target wiki the processor needs.
type Wiki interface {
	Lang() string
	PageText(ctx context.Context, title string) (string, error)
	SavePage(ctx context.Context, title, text, summary string) error
}

// FileUploader imports one file and reports the terminal outcome.
type FileUploader interface {
	Upload(ctx context.Context, filename string) (uploader.Outcome, error)
}

// PageRecorder persists which pages were processed.
type PageRecorder interface {
	RecordPage(ctx context.Context, pageTitle, language string, templatesFound, filesUploaded int) error
}

// Processor rewrites one page at a time.
type Processor struct {
	wiki     Wiki
	uploader FileUploader
	recorder PageRecorder
	category string
	logger   *slog.Logger
}

// New builds a Processor. category is the page-level import category
// appended to modified articles.
func New(wiki Wiki, up FileUploader, recorder PageRecorder, category string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		wiki:     wiki,
		uploader: up,
		recorder: recorder,
		category: category,
		logger:   logger,
	}
}

// ProcessPage imports every marked file on the page and replaces the
// markers whose files ended up available on the target. Returns true
// when the page was modified and saved.
func (p *Processor) ProcessPage(ctx context.Context, title string) (bool, error) {
	lang := p.wiki.Lang()
	log := p.logger.With("page", title, "lang", lang)

	text, err := p.wiki.PageText(ctx, title)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", title, err)
	}

	templates := wikitext.ExtractTemplates(text)
	if len(templates) == 0 {
		log.Info("no NC templates on page")
		p.recordPage(ctx, log, title, lang, 0, 0)
		return false, nil
	}
	log.Info("found NC templates", "count", len(templates))

	replacements := map[string]string{}
	filesChanged := 0

	for _, tmpl := range templates {
		out, err := p.uploader.Upload(ctx, tmpl.Filename)
		if err != nil {
			return false, fmt.Errorf("upload %s: %w", tmpl.Filename, err)
		}

		switch out.Kind {
		case uploader.KindUploaded, uploader.KindAlreadyImported, uploader.KindAlreadyExists:
			// The file is available under its own name.
			replacements[tmpl.Original] = tmpl.FileSyntax("")
			filesChanged++
		case uploader.KindDuplicate:
			// Point the article at the pre-existing file instead.
			replacements[tmpl.Original] = tmpl.FileSyntax(out.DuplicateOf)
			filesChanged++
		case uploader.KindFailed:
			log.Warn("file not imported", "file", tmpl.Filename, "reason", out.Reason)
		}
	}

	if len(replacements) == 0 {
		log.Info("no files imported, page unchanged")
		p.recordPage(ctx, log, title, lang, len(templates), 0)
		return false, nil
	}

	newText := text
	for original, replacement := range replacements {
		newText = strings.ReplaceAll(newText, original, replacement)
	}

	category := fmt.Sprintf("[[%s]]", p.category)
	if p.category != "" && !strings.Contains(newText, category) {
		newText += "\n" + category
	}

	summary := fmt.Sprintf("Bot: Imported %d file(s) from NC Commons", filesChanged)
	if err := p.wiki.SavePage(ctx, title, newText, summary); err != nil {
		return false, fmt.Errorf("save %s: %w", title, err)
	}

	p.recordPage(ctx, log, title, lang, len(templates), filesChanged)
	log.Info("page updated", "files", filesChanged)
	return true, nil
}

// recordPage logs and swallows ledger errors; the page edit already
// happened and stays authoritative.
func (p *Processor) recordPage(ctx context.Context, log *slog.Logger, title, lang string, found, uploaded int) {
	if err := p.recorder.RecordPage(ctx, title, lang, found, uploaded); err != nil {
		log.Error("failed to record page processing", "error", err)
	}
}
