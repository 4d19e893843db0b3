package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrFileNotFound is returned when the source repository has no such
// file, or the file has no retrievable original.
var ErrFileNotFound = errors.New("file not found")

// Source reads files and descriptions out of the source media
// repository (NC Commons).
type Source struct {
	client *Client
}

// NewSource wraps a client for the source repository.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

// Client returns the underlying wiki client.
func (s *Source) Client() *Client {
	return s.client
}

// ImageURL resolves a file name to a direct download URL.
func (s *Source) ImageURL(ctx context.Context, filename string) (string, error) {
	if err := s.client.Login(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", filePageTitle(filename))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url")
	params.Set("formatversion", "2")

	var reply struct {
		Query struct {
			Pages []struct {
				Missing   bool `json:"missing"`
				ImageInfo []struct {
					URL string `json:"url"`
				} `json:"imageinfo"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := s.client.call(ctx, http.MethodGet, params, &reply); err != nil {
		return "", fmt.Errorf("image info for %s: %w", filename, err)
	}

	pages := reply.Query.Pages
	if len(pages) == 0 || pages[0].Missing {
		return "", fmt.Errorf("%s: %w", filename, ErrFileNotFound)
	}
	if len(pages[0].ImageInfo) == 0 || pages[0].ImageInfo[0].URL == "" {
		return "", fmt.Errorf("%s has no original file: %w", filename, ErrFileNotFound)
	}

	return pages[0].ImageInfo[0].URL, nil
}

// FileDescription fetches the wikitext of the file's description page.
// A missing description page maps to ErrFileNotFound.
func (s *Source) FileDescription(ctx context.Context, filename string) (string, error) {
	text, err := s.client.PageText(ctx, filePageTitle(filename))
	if errors.Is(err, ErrPageNotFound) {
		return "", fmt.Errorf("%s: %w", filename, ErrFileNotFound)
	}
	return text, err
}

// filePageTitle ensures the file-namespace prefix is present.
func filePageTitle(filename string) string {
	if strings.HasPrefix(filename, "File:") {
		return filename
	}
	return "File:" + filename
}
