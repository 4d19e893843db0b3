// Package uploader drives the import of a single file from the source
// repository into one target wiki: idempotency check, source lookup,
// description transform, URL upload, download-then-upload fallback,
// and outcome recording.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/NCCommons/import-bot/pkg/mediawiki"
	"github.com/NCCommons/import-bot/pkg/retry"
	"github.com/NCCommons/import-bot/pkg/store"
	"github.com/NCCommons/import-bot/pkg/tempfile"
	"github.com/NCCommons/import-bot/pkg/wikitext"
)

// Source fetches file metadata from the source media repository.
type Source interface {
	ImageURL(ctx context.Context, filename string) (string, error)
	FileDescription(ctx context.Context, filename string) (string, error)
}

// Target accepts uploads into the destination wiki.
type Target interface {
	Lang() string
	UploadByURL(ctx context.Context, filename, fileURL, description, comment string) (mediawiki.Outcome, error)
	UploadByContent(ctx context.Context, filename, path, description, comment string) (mediawiki.Outcome, error)
}

// Recorder is the idempotency ledger for upload attempts.
type Recorder interface {
	IsFileUploaded(ctx context.Context, filename, language string) (bool, error)
	RecordUpload(ctx context.Context, filename, language, status, errorDetail string) error
}

// Kind is the closed set of terminal results of an Upload call.
type Kind int

const (
	// KindAlreadyImported: the ledger says this pair already succeeded;
	// no remote call was made.
	KindAlreadyImported Kind = iota
	KindUploaded
	// KindAlreadyExists: the target has a file with this exact name.
	// Deliberately not recorded as success, since nothing new was
	// imported; still replace-eligible for the page layer.
	KindAlreadyExists
	KindDuplicate
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyImported:
		return "already_imported"
	case KindUploaded:
		return "uploaded"
	case KindAlreadyExists:
		return "already_exists"
	case KindDuplicate:
		return "duplicate"
	case KindFailed:
		return "failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the definite terminal result returned to the caller.
type Outcome struct {
	Kind        Kind
	DuplicateOf string // set for KindDuplicate
	Reason      string // set for KindFailed
}

// Uploader wires the collaborators for one target wiki.
type Uploader struct {
	source   Source
	target   Target
	recorder Recorder

	policy   *retry.Policy
	download *http.Client
	logger   *slog.Logger

	comment  string
	category string
}

// Options configure an Uploader beyond its collaborators.
type Options struct {
	// Comment is the fixed upload summary.
	Comment string
	// Category is the "imported from source" category appended to
	// every description, e.g. "Category:Files from NC Commons".
	Category string
	// Policy wraps each remote call; nil gets a default of 3 attempts,
	// 5s initial delay, doubling, retrying transport conditions only.
	Policy *retry.Policy
	// Download performs the fallback file download; nil uses
	// http.DefaultClient.
	Download *http.Client
	Logger   *slog.Logger
}

// New builds an Uploader.
func New(source Source, target Target, recorder Recorder, opts Options) *Uploader {
	policy := opts.Policy
	if policy == nil {
		policy = &retry.Policy{
			MaxAttempts:  3,
			InitialDelay: 5 * time.Second,
			Multiplier:   2,
			Retryable:    mediawiki.IsTransient,
			Logger:       opts.Logger,
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{
		source:   source,
		target:   target,
		recorder: recorder,
		policy:   policy,
		download: opts.Download,
		logger:   logger,
		comment:  opts.Comment,
		category: opts.Category,
	}
}

// Upload runs the full decision procedure for one file. Expected
// conditions (duplicate, exists, disabled-then-recovered, classified
// failures) come back as Outcome values; the error return is reserved
// for programmer errors, cancellation, and ledger read failures.
func (u *Uploader) Upload(ctx context.Context, filename string) (Outcome, error) {
	filename = strings.TrimSpace(strings.TrimPrefix(filename, "File:"))
	if filename == "" {
		return Outcome{}, errors.New("filename must not be empty")
	}

	lang := u.target.Lang()
	log := u.logger.With("file", filename, "lang", lang)

	already, err := u.recorder.IsFileUploaded(ctx, filename, lang)
	if err != nil {
		return Outcome{}, fmt.Errorf("check ledger for %s: %w", filename, err)
	}
	if already {
		log.Info("file already imported, skipping")
		return Outcome{Kind: KindAlreadyImported}, nil
	}

	log.Info("fetching file from source repository")
	var fileURL string
	err = u.policy.Do(ctx, func() error {
		var e error
		fileURL, e = u.source.ImageURL(ctx, filename)
		return e
	})
	if err != nil {
		return u.sourceFailure(ctx, log, filename, lang, err)
	}

	var description string
	err = u.policy.Do(ctx, func() error {
		var e error
		description, e = u.source.FileDescription(ctx, filename)
		return e
	})
	if err != nil {
		return u.sourceFailure(ctx, log, filename, lang, err)
	}

	description = u.transformDescription(description)

	log.Info("uploading by URL", "url", fileURL)
	var out mediawiki.Outcome
	err = u.policy.Do(ctx, func() error {
		var e error
		out, e = u.target.UploadByURL(ctx, filename, fileURL, description, u.comment)
		return e
	})
	if err != nil {
		return u.transportFailure(ctx, log, filename, lang, err)
	}

	if out.Status == mediawiki.StatusURLDisabled {
		log.Info("upload by URL disabled, falling back to download")
		return u.uploadViaDownload(ctx, log, filename, lang, fileURL, description)
	}

	return u.terminal(ctx, log, filename, lang, out)
}

// uploadViaDownload is the DOWNLOAD_FALLBACK state: stream the file to
// a transient scratch path and upload its bytes. The scratch file is
// removed on every exit path, cancellation included.
func (u *Uploader) uploadViaDownload(ctx context.Context, log *slog.Logger, filename, lang, fileURL, description string) (Outcome, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil || parsed.Scheme != "https" {
		reason := fmt.Sprintf("invalid url scheme %q for %s: only https is allowed", schemeOf(parsed), filename)
		log.Error("refusing insecure download", "url", fileURL)
		u.record(ctx, log, filename, lang, store.StatusFailed, reason)
		return Outcome{Kind: KindFailed, Reason: reason}, nil
	}

	suffix := filepath.Ext(filename)
	if suffix == "" {
		suffix = ".tmp"
	}

	var out mediawiki.Outcome
	err = tempfile.WithTransientFile(suffix, func(path string) error {
		log.Debug("downloading to transient file", "path", path)
		if err := tempfile.Download(ctx, u.download, fileURL, path); err != nil {
			return err
		}

		return u.policy.Do(ctx, func() error {
			var e error
			out, e = u.target.UploadByContent(ctx, filename, path, description, u.comment)
			return e
		})
	})
	if err != nil {
		return u.transportFailure(ctx, log, filename, lang, err)
	}

	return u.terminal(ctx, log, filename, lang, out)
}

// terminal converts a classified upload outcome into the ledger write
// and the caller-visible result. Exactly one write happens here per
// invocation, except for the exists case which never writes.
func (u *Uploader) terminal(ctx context.Context, log *slog.Logger, filename, lang string, out mediawiki.Outcome) (Outcome, error) {
	switch out.Status {
	case mediawiki.StatusSuccess:
		u.record(ctx, log, filename, lang, store.StatusSuccess, "")
		log.Info("upload successful")
		return Outcome{Kind: KindUploaded}, nil

	case mediawiki.StatusDuplicate:
		u.record(ctx, log, filename, lang, store.StatusDuplicate, out.DuplicateOf)
		log.Warn("file is a duplicate", "duplicate_of", out.DuplicateOf)
		return Outcome{Kind: KindDuplicate, DuplicateOf: out.DuplicateOf}, nil

	case mediawiki.StatusExists:
		log.Warn("file already exists on target under the same name")
		return Outcome{Kind: KindAlreadyExists}, nil

	default:
		reason := failureReason(out)
		u.record(ctx, log, filename, lang, store.StatusFailed, reason)
		log.Error("upload failed", "reason", reason)
		return Outcome{Kind: KindFailed, Reason: reason}, nil
	}
}

// sourceFailure handles FETCH_SOURCE errors: a missing source file and
// exhausted transport retries are both terminal, recorded failures.
func (u *Uploader) sourceFailure(ctx context.Context, log *slog.Logger, filename, lang string, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return Outcome{}, err
	}

	reason := err.Error()
	if errors.Is(err, mediawiki.ErrFileNotFound) {
		reason = fmt.Sprintf("source file not found: %s", filename)
	}
	u.record(ctx, log, filename, lang, store.StatusFailed, reason)
	log.Error("source lookup failed", "error", err)
	return Outcome{Kind: KindFailed, Reason: reason}, nil
}

// transportFailure handles upload calls that never produced a
// classification (retries exhausted or download failed).
func (u *Uploader) transportFailure(ctx context.Context, log *slog.Logger, filename, lang string, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return Outcome{}, err
	}

	reason := err.Error()
	u.record(ctx, log, filename, lang, store.StatusFailed, reason)
	log.Error("upload failed", "error", err)
	return Outcome{Kind: KindFailed, Reason: reason}, nil
}

// record writes the ledger. A failed write is logged and swallowed:
// the remote upload's result stays authoritative for the caller.
func (u *Uploader) record(ctx context.Context, log *slog.Logger, filename, lang, status, detail string) {
	if err := u.recorder.RecordUpload(ctx, filename, lang, status, detail); err != nil {
		log.Error("failed to record upload outcome", "status", status, "error", err)
	}
}

// transformDescription strips source-wiki categories and appends the
// configured import category.
func (u *Uploader) transformDescription(description string) string {
	out := wikitext.RemoveCategories(description)
	if u.category != "" {
		out += fmt.Sprintf("\n[[%s]]", u.category)
	}
	return strings.TrimSpace(out)
}

func failureReason(out mediawiki.Outcome) string {
	if out.Message == "" {
		return out.Status.String()
	}
	return fmt.Sprintf("%s: %s", out.Status, out.Message)
}

func schemeOf(parsed *url.URL) string {
	if parsed == nil {
		return ""
	}
	return parsed.Scheme
}
