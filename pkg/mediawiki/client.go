// Package mediawiki is the wire client for MediaWiki sites: login,
// tokens, page reads and writes, and the two upload transports. The
// import core consumes it through the Source and Target types.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
)

const userAgent = "ncimport-bot/1.0 (https://nccommons.org)"

// ErrPageNotFound is returned when a requested page does not exist.
var ErrPageNotFound = errors.New("page not found")

// Credentials selects the authentication mode. With OAuth set, requests
// are signed with an owner-only OAuth1 consumer and no login round-trip
// happens; otherwise Username/Password drive a bot-password login.
type Credentials struct {
	Username string
	Password string
	OAuth    *OAuthCredentials
}

// OAuthCredentials hold a pre-provisioned owner-only OAuth1 grant.
type OAuthCredentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Client talks to one MediaWiki site.
type Client struct {
	host       string
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	loggedIn  bool
	editToken string
}

// NewClient builds a client for host (e.g. "en.wikipedia.org").
func NewClient(host string, creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		host:   host,
		creds:  creds,
		logger: logger,
	}

	if creds.OAuth != nil {
		cfg := oauth1.NewConfig(creds.OAuth.ConsumerKey, creds.OAuth.ConsumerSecret)
		token := oauth1.NewToken(creds.OAuth.AccessToken, creds.OAuth.AccessSecret)
		c.httpClient = cfg.Client(context.Background(), token)
		c.httpClient.Timeout = 2 * time.Minute
		c.loggedIn = true
		return c
	}

	jar, _ := cookiejar.New(nil)
	c.httpClient = &http.Client{Jar: jar, Timeout: 2 * time.Minute}
	return c
}

// Host returns the site host the client is bound to.
func (c *Client) Host() string {
	return c.host
}

// HTTPClient exposes the underlying client for raw downloads from the
// same site (file bytes are not API calls).
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SetBaseURL overrides the API endpoint, for sites that do not serve
// the API under /w/api.php and for tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

func (c *Client) apiURL() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s/w/api.php", c.host)
}

// call performs one API request and decodes the JSON reply into out.
// Network failures and 5xx responses come back marked transient so the
// retry layer can distinguish them from protocol errors.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("format", "json")

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, c.apiURL()+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.apiURL(), strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	return c.send(req, out)
}

// send executes a prepared request and decodes the reply.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return markTransient(fmt.Errorf("%s %s: %w", req.Method, c.host, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return markTransient(fmt.Errorf("%s: server error %s", c.host, resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", c.host, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return markTransient(fmt.Errorf("read response from %s: %w", c.host, err))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", c.host, err)
	}

	return nil
}

// Login authenticates with a bot password. Repeated calls after a
// successful login are no-ops; OAuth clients never need it.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return nil
	}

	token, err := c.fetchToken(ctx, "login")
	if err != nil {
		return fmt.Errorf("fetch login token: %w", err)
	}

	params := url.Values{}
	params.Set("action", "login")
	params.Set("lgname", c.creds.Username)
	params.Set("lgpassword", c.creds.Password)
	params.Set("lgtoken", token)

	var reply struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	if err := c.call(ctx, http.MethodPost, params, &reply); err != nil {
		return fmt.Errorf("login to %s: %w", c.host, err)
	}
	if reply.Login.Result != "Success" {
		return fmt.Errorf("login to %s failed: %s %s", c.host, reply.Login.Result, reply.Login.Reason)
	}

	c.loggedIn = true
	c.logger.Info("logged in", "host", c.host, "user", c.creds.Username)
	return nil
}

// EditToken returns a CSRF token, fetching and caching it on first use.
func (c *Client) EditToken(ctx context.Context) (string, error) {
	if err := c.Login(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editToken != "" {
		return c.editToken, nil
	}

	token, err := c.fetchToken(ctx, "csrf")
	if err != nil {
		return "", fmt.Errorf("fetch edit token: %w", err)
	}

	c.editToken = token
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context, kind string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", kind)

	var reply struct {
		Query struct {
			Tokens map[string]string `json:"tokens"`
		} `json:"query"`
	}
	if err := c.call(ctx, http.MethodGet, params, &reply); err != nil {
		return "", err
	}

	token := reply.Query.Tokens[kind+"token"]
	if token == "" {
		return "", fmt.Errorf("no %s token in response from %s", kind, c.host)
	}
	return token, nil
}

// PageText fetches the current wikitext of a page. Missing pages
// return ErrPageNotFound.
func (c *Client) PageText(ctx context.Context, title string) (string, error) {
	if err := c.Login(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "revisions")
	params.Set("rvprop", "content")
	params.Set("rvslots", "main")
	params.Set("titles", title)
	params.Set("formatversion", "2")

	var reply struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Missing   bool   `json:"missing"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.call(ctx, http.MethodGet, params, &reply); err != nil {
		return "", err
	}

	pages := reply.Query.Pages
	if len(pages) == 0 || pages[0].Missing || len(pages[0].Revisions) == 0 {
		return "", fmt.Errorf("%s on %s: %w", title, c.host, ErrPageNotFound)
	}

	return pages[0].Revisions[0].Slots.Main.Content, nil
}

// SavePage writes new wikitext to a page with an edit summary.
func (c *Client) SavePage(ctx context.Context, title, text, summary string) error {
	token, err := c.EditToken(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("action", "edit")
	params.Set("title", title)
	params.Set("text", text)
	params.Set("summary", summary)
	params.Set("bot", "1")
	params.Set("token", token)

	var reply struct {
		Error *apiError `json:"error"`
		Edit  struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	if err := c.call(ctx, http.MethodPost, params, &reply); err != nil {
		return fmt.Errorf("save %s: %w", title, err)
	}
	if reply.Error != nil {
		return fmt.Errorf("save %s: %s: %s", title, reply.Error.Code, reply.Error.Info)
	}
	if reply.Edit.Result != "Success" {
		return fmt.Errorf("save %s: unexpected result %q", title, reply.Edit.Result)
	}

	return nil
}

// PagesEmbedding lists pages that transclude the given template, up to
// limit titles, following API continuation.
func (c *Client) PagesEmbedding(ctx context.Context, template string, limit int) ([]string, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(template, "Template:") {
		template = "Template:" + template
	}

	var titles []string
	cont := ""
	for len(titles) < limit {
		params := url.Values{}
		params.Set("action", "query")
		params.Set("list", "embeddedin")
		params.Set("eititle", template)
		params.Set("einamespace", "0")
		params.Set("eilimit", "500")
		if cont != "" {
			params.Set("eicontinue", cont)
		}

		var reply struct {
			Continue struct {
				EiContinue string `json:"eicontinue"`
			} `json:"continue"`
			Query struct {
				EmbeddedIn []struct {
					Title string `json:"title"`
				} `json:"embeddedin"`
			} `json:"query"`
		}
		if err := c.call(ctx, http.MethodGet, params, &reply); err != nil {
			return nil, fmt.Errorf("list pages embedding %s: %w", template, err)
		}

		for _, p := range reply.Query.EmbeddedIn {
			titles = append(titles, p.Title)
			if len(titles) == limit {
				return titles, nil
			}
		}

		cont = reply.Continue.EiContinue
		if cont == "" {
			break
		}
	}

	return titles, nil
}

// transientError marks transport-level failures as retry candidates.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func markTransient(err error) error {
	return &transientError{err: err}
}

// IsTransient reports whether err is a transport-level condition worth
// retrying. Classified outcomes are values, never errors, so they can
// not end up here.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
