// Package tempfile manages scratch files for the download-then-upload
// fallback. A transient file exists for exactly one attempt and is
// removed on every exit path.
package tempfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WithTransientFile creates a uniquely named scratch file, hands its
// path to fn, and removes the file after fn returns. The file is closed
// before fn runs so fn can reopen it freely. A file already gone at
// cleanup time is not an error. Returns fn's error.
func WithTransientFile(suffix string, fn func(path string) error) error {
	path := filepath.Join(os.TempDir(), "nc_import_"+uuid.NewString()+suffix)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create transient file: %w", err)
	}
	f.Close()
	defer os.Remove(path)

	return fn(path)
}

// Download streams the body of url into the file at path. Any existing
// content at path is truncated. Non-2xx responses are errors.
func Download(ctx context.Context, client *http.Client, url, path string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open transient file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write download: %w", err)
	}

	return out.Close()
}
