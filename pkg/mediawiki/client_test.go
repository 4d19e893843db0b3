package mediawiki

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWiki is a minimal action-API server for client tests.
type fakeWiki struct {
	t *testing.T

	uploadReply string
	uploadCalls int
	lastUpload  map[string]string
	pageContent map[string]string
	savedPages  map[string]string
	failUploads int // respond 503 to this many upload calls first
}

func newFakeWiki(t *testing.T) (*fakeWiki, *Client) {
	fw := &fakeWiki{
		t:           t,
		uploadReply: `{"upload":{"result":"Success"}}`,
		pageContent: map[string]string{},
		savedPages:  map[string]string{},
	}

	srv := httptest.NewServer(fw)
	t.Cleanup(srv.Close)

	client := NewClient("test.example.org", Credentials{Username: "Bot", Password: "secret"}, nil)
	client.SetBaseURL(srv.URL)
	client.httpClient = srv.Client()
	return fw, client
}

func (fw *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		r.ParseForm()
	}

	switch r.Form.Get("action") {
	case "query":
		fw.handleQuery(w, r)
	case "login":
		fmt.Fprint(w, `{"login":{"result":"Success"}}`)
	case "upload":
		fw.uploadCalls++
		if fw.failUploadsLeft() {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		fw.lastUpload = map[string]string{}
		for k := range r.Form {
			fw.lastUpload[k] = r.Form.Get(k)
		}
		fmt.Fprint(w, fw.uploadReply)
	case "edit":
		fw.savedPages[r.Form.Get("title")] = r.Form.Get("text")
		fmt.Fprint(w, `{"edit":{"result":"Success"}}`)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (fw *fakeWiki) failUploadsLeft() bool {
	if fw.failUploads > 0 {
		fw.failUploads--
		return true
	}
	return false
}

func (fw *fakeWiki) handleQuery(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Form.Get("meta") == "tokens":
		kind := r.Form.Get("type")
		fmt.Fprintf(w, `{"query":{"tokens":{"%stoken":"%s-token+\\"}}}`, kind, kind)
	case r.Form.Get("prop") == "imageinfo":
		fmt.Fprint(w, `{"query":{"pages":[{"imageinfo":[{"url":"https://files.example.org/Example.jpg"}]}]}}`)
	case r.Form.Get("prop") == "revisions":
		title := r.Form.Get("titles")
		content, ok := fw.pageContent[title]
		if !ok {
			fmt.Fprint(w, `{"query":{"pages":[{"missing":true}]}}`)
			return
		}
		fmt.Fprintf(w, `{"query":{"pages":[{"revisions":[{"slots":{"main":{"content":%q}}}]}]}}`, content)
	default:
		http.Error(w, "unknown query", http.StatusBadRequest)
	}
}

func TestLoginThenPageText(t *testing.T) {
	fw, client := newFakeWiki(t)
	fw.pageContent["Anatomy"] = "Body text {{NC|X.jpg}}"

	text, err := client.PageText(context.Background(), "Anatomy")
	require.NoError(t, err)
	assert.Equal(t, "Body text {{NC|X.jpg}}", text)
}

func TestPageTextMissing(t *testing.T) {
	_, client := newFakeWiki(t)

	_, err := client.PageText(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestSavePage(t *testing.T) {
	fw, client := newFakeWiki(t)

	err := client.SavePage(context.Background(), "Anatomy", "new text", "Bot: update")
	require.NoError(t, err)
	assert.Equal(t, "new text", fw.savedPages["Anatomy"])
}

func TestUploadByURLSendsFormAndClassifies(t *testing.T) {
	fw, client := newFakeWiki(t)
	target := NewTarget(client, "en")

	out, err := target.UploadByURL(context.Background(), "File:Example.jpg",
		"https://files.example.org/Example.jpg", "A description", "Bot: import")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)

	assert.Equal(t, "Example.jpg", fw.lastUpload["filename"])
	assert.Equal(t, "https://files.example.org/Example.jpg", fw.lastUpload["url"])
	assert.Equal(t, "A description", fw.lastUpload["text"])
	assert.Equal(t, "Bot: import", fw.lastUpload["comment"])
	assert.NotEmpty(t, fw.lastUpload["token"])
}

func TestUploadByURLDisabledClassification(t *testing.T) {
	fw, client := newFakeWiki(t)
	fw.uploadReply = `{"error":{"code":"copyuploaddisabled","info":"Upload by URL disabled.","*":""}}`
	target := NewTarget(client, "en")

	out, err := target.UploadByURL(context.Background(), "Example.jpg", "https://x/Example.jpg", "d", "c")
	require.NoError(t, err)
	assert.Equal(t, StatusURLDisabled, out.Status)
}

func TestUploadByContentSendsMultipart(t *testing.T) {
	fw, client := newFakeWiki(t)
	target := NewTarget(client, "en")

	path := filepath.Join(t.TempDir(), "Example.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0600))

	out, err := target.UploadByContent(context.Background(), "Example.jpg", path, "desc", "comment")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "Example.jpg", fw.lastUpload["filename"])
	assert.Equal(t, "desc", fw.lastUpload["text"])
}

func TestServerErrorIsTransient(t *testing.T) {
	fw, client := newFakeWiki(t)
	fw.failUploads = 1
	target := NewTarget(client, "en")

	_, err := target.UploadByURL(context.Background(), "Example.jpg", "https://x/Example.jpg", "d", "c")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestSourceImageURL(t *testing.T) {
	_, client := newFakeWiki(t)
	source := NewSource(client)

	u, err := source.ImageURL(context.Background(), "Example.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.org/Example.jpg", u)
}

func TestTargetFileExists(t *testing.T) {
	fw, client := newFakeWiki(t)
	fw.pageContent["File:Present.jpg"] = "description"
	target := NewTarget(client, "en")

	exists, err := target.FileExists(context.Background(), "Present.jpg")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = target.FileExists(context.Background(), "Absent.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}
