package mediawiki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Target is the destination wiki files are imported into. It carries
// the language code the store keys records by.
type Target struct {
	client *Client
	lang   string
}

// NewTarget wraps a client for one target wiki.
func NewTarget(client *Client, lang string) *Target {
	return &Target{client: client, lang: lang}
}

// Lang returns the target's language code.
func (t *Target) Lang() string {
	return t.lang
}

// UploadByURL asks the wiki to fetch the file from url itself. The
// returned Outcome is the classified result; a non-nil error means the
// call never produced a classification (transport failure).
func (t *Target) UploadByURL(ctx context.Context, filename, fileURL, description, comment string) (Outcome, error) {
	token, err := t.client.EditToken(ctx)
	if err != nil {
		return Outcome{}, err
	}

	params := url.Values{}
	params.Set("action", "upload")
	params.Set("filename", uploadName(filename))
	params.Set("url", fileURL)
	params.Set("text", description)
	params.Set("comment", comment)
	params.Set("token", token)

	var reply uploadResponse
	if err := t.client.call(ctx, http.MethodPost, params, &reply); err != nil {
		return Outcome{}, fmt.Errorf("upload %s by url: %w", filename, err)
	}

	return classifyUpload(reply), nil
}

// UploadByContent uploads the bytes of a local file. Used as the
// fallback transport when upload-by-URL is disabled.
func (t *Target) UploadByContent(ctx context.Context, filename, path, description, comment string) (Outcome, error) {
	token, err := t.client.EditToken(ctx)
	if err != nil {
		return Outcome{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"action":   "upload",
		"format":   "json",
		"filename": uploadName(filename),
		"text":     description,
		"comment":  comment,
		"token":    token,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return Outcome{}, fmt.Errorf("write form field: %w", err)
		}
	}

	// The part filename is not interpreted by the API, and non-ASCII
	// names break some multipart parsers, so send a fixed dummy name.
	part, err := writer.CreateFormFile("file", "import-upload")
	if err != nil {
		return Outcome{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Outcome{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return Outcome{}, fmt.Errorf("finalize upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.client.apiURL(), &body)
	if err != nil {
		return Outcome{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", userAgent)

	var reply uploadResponse
	if err := t.client.send(req, &reply); err != nil {
		return Outcome{}, fmt.Errorf("upload %s by content: %w", filename, err)
	}

	return classifyUpload(reply), nil
}

// FileExists reports whether a file with this exact name already
// exists on the target wiki.
func (t *Target) FileExists(ctx context.Context, filename string) (bool, error) {
	_, err := t.client.PageText(ctx, filePageTitle(filename))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrPageNotFound) {
		return false, nil
	}
	return false, err
}

// PageText fetches a page from the target wiki.
func (t *Target) PageText(ctx context.Context, title string) (string, error) {
	return t.client.PageText(ctx, title)
}

// SavePage writes a page on the target wiki.
func (t *Target) SavePage(ctx context.Context, title, text, summary string) error {
	return t.client.SavePage(ctx, title, text, summary)
}

// PagesEmbedding lists target pages transcluding a template.
func (t *Target) PagesEmbedding(ctx context.Context, template string, limit int) ([]string, error) {
	return t.client.PagesEmbedding(ctx, template, limit)
}

// uploadName strips the file-namespace prefix; the upload API wants a
// bare name.
func uploadName(filename string) string {
	return strings.TrimPrefix(filename, "File:")
}
