package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "nccommons.org", cfg.NCCommons.Host)
	assert.Equal(t, "NC", cfg.Wikipedia.Template)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
wikipedia:
  category: "Category:Imported media"
retry:
  max_attempts: 5
  delay_seconds: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Category:Imported media", cfg.Wikipedia.Category)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Delay())

	// Untouched sections keep their defaults.
	assert.Equal(t, "Bot: importing file from NC Commons", cfg.Wikipedia.UploadComment)
	assert.Equal(t, 2.0, cfg.Retry.Backoff)
	assert.Equal(t, "./data/nc_files.db", cfg.Database.Path)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wikipedia: ["), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("NCCOMMONS_USERNAME", "NCBot")
	t.Setenv("NCCOMMONS_PASSWORD", "nc-secret")
	t.Setenv("WIKIPEDIA_USERNAME", "WikiBot")
	t.Setenv("WIKIPEDIA_PASSWORD", "wiki-secret")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "NCBot", creds.NCUsername)
	assert.Equal(t, "wiki-secret", creds.WikiPassword)
	assert.False(t, creds.HasOAuth())
}

func TestLoadCredentialsMissing(t *testing.T) {
	t.Setenv("NCCOMMONS_USERNAME", "NCBot")
	t.Setenv("NCCOMMONS_PASSWORD", "")
	t.Setenv("WIKIPEDIA_USERNAME", "WikiBot")
	t.Setenv("WIKIPEDIA_PASSWORD", "wiki-secret")

	_, err := LoadCredentials()
	assert.ErrorContains(t, err, "NCCOMMONS_PASSWORD")
}

func TestLoadCredentialsOAuthReplacesPassword(t *testing.T) {
	t.Setenv("NCCOMMONS_USERNAME", "NCBot")
	t.Setenv("NCCOMMONS_PASSWORD", "nc-secret")
	t.Setenv("WIKIPEDIA_USERNAME", "")
	t.Setenv("WIKIPEDIA_PASSWORD", "")
	t.Setenv("WIKIPEDIA_OAUTH_CONSUMER_KEY", "ck")
	t.Setenv("WIKIPEDIA_OAUTH_CONSUMER_SECRET", "cs")
	t.Setenv("WIKIPEDIA_OAUTH_ACCESS_TOKEN", "at")
	t.Setenv("WIKIPEDIA_OAUTH_ACCESS_SECRET", "as")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.True(t, creds.HasOAuth())
}
