// Package config loads the bot's YAML configuration and environment
// credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	NCCommons  NCCommonsConfig  `yaml:"nccommons"`
	Wikipedia  WikipediaConfig  `yaml:"wikipedia"`
	Processing ProcessingConfig `yaml:"processing"`
	Retry      RetryConfig      `yaml:"retry"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NCCommonsConfig describes the source media repository.
type NCCommonsConfig struct {
	Host string `yaml:"host"`
	// LanguageListPage is the page listing which wikis to process.
	LanguageListPage string `yaml:"language_list_page"`
}

// WikipediaConfig describes the target wikis.
type WikipediaConfig struct {
	// Template is the marker template name, without namespace.
	Template string `yaml:"template"`
	// Category is appended to imported descriptions and pages.
	Category      string `yaml:"category"`
	UploadComment string `yaml:"upload_comment"`
}

// ProcessingConfig bounds a run.
type ProcessingConfig struct {
	MaxPagesPerLanguage int `yaml:"max_pages_per_language"`
}

// RetryConfig tunes the backoff wrapper around remote calls.
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	DelaySeconds float64 `yaml:"delay_seconds"`
	Backoff      float64 `yaml:"backoff"`
}

// Delay returns the initial retry delay as a duration.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelaySeconds * float64(time.Second))
}

// DatabaseConfig locates the SQLite ledger.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Credentials are taken from the environment, never from the config
// file.
type Credentials struct {
	NCUsername   string
	NCPassword   string
	WikiUsername string
	WikiPassword string

	// Optional owner-only OAuth1 grant for the target wikis. When all
	// four values are present the bot signs requests instead of doing
	// a bot-password login.
	OAuthConsumerKey    string
	OAuthConsumerSecret string
	OAuthAccessToken    string
	OAuthAccessSecret   string
}

// HasOAuth reports whether a complete OAuth1 grant is configured.
func (c Credentials) HasOAuth() bool {
	return c.OAuthConsumerKey != "" && c.OAuthConsumerSecret != "" &&
		c.OAuthAccessToken != "" && c.OAuthAccessSecret != ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NCCommons: NCCommonsConfig{
			Host:             "nccommons.org",
			LanguageListPage: "User:Mr. Ibrahem/import bot",
		},
		Wikipedia: WikipediaConfig{
			Template:      "NC",
			Category:      "Category:Files from NC Commons",
			UploadComment: "Bot: importing file from NC Commons",
		},
		Processing: ProcessingConfig{MaxPagesPerLanguage: 5000},
		Retry:      RetryConfig{MaxAttempts: 3, DelaySeconds: 5, Backoff: 2},
		Database:   DatabaseConfig{Path: "./data/nc_files.db"},
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path, filling unset fields with
// defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills fields an explicit config left empty.
func (c *Config) applyDefaults() {
	def := Default()
	if c.NCCommons.Host == "" {
		c.NCCommons.Host = def.NCCommons.Host
	}
	if c.NCCommons.LanguageListPage == "" {
		c.NCCommons.LanguageListPage = def.NCCommons.LanguageListPage
	}
	if c.Wikipedia.Template == "" {
		c.Wikipedia.Template = def.Wikipedia.Template
	}
	if c.Wikipedia.Category == "" {
		c.Wikipedia.Category = def.Wikipedia.Category
	}
	if c.Wikipedia.UploadComment == "" {
		c.Wikipedia.UploadComment = def.Wikipedia.UploadComment
	}
	if c.Processing.MaxPagesPerLanguage <= 0 {
		c.Processing.MaxPagesPerLanguage = def.Processing.MaxPagesPerLanguage
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.DelaySeconds <= 0 {
		c.Retry.DelaySeconds = def.Retry.DelaySeconds
	}
	if c.Retry.Backoff <= 0 {
		c.Retry.Backoff = def.Retry.Backoff
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// LoadCredentials reads bot credentials from the environment.
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		NCUsername:   os.Getenv("NCCOMMONS_USERNAME"),
		NCPassword:   os.Getenv("NCCOMMONS_PASSWORD"),
		WikiUsername: os.Getenv("WIKIPEDIA_USERNAME"),
		WikiPassword: os.Getenv("WIKIPEDIA_PASSWORD"),

		OAuthConsumerKey:    os.Getenv("WIKIPEDIA_OAUTH_CONSUMER_KEY"),
		OAuthConsumerSecret: os.Getenv("WIKIPEDIA_OAUTH_CONSUMER_SECRET"),
		OAuthAccessToken:    os.Getenv("WIKIPEDIA_OAUTH_ACCESS_TOKEN"),
		OAuthAccessSecret:   os.Getenv("WIKIPEDIA_OAUTH_ACCESS_SECRET"),
	}

	required := map[string]string{
		"NCCOMMONS_USERNAME": creds.NCUsername,
		"NCCOMMONS_PASSWORD": creds.NCPassword,
	}
	if !creds.HasOAuth() {
		required["WIKIPEDIA_USERNAME"] = creds.WikiUsername
		required["WIKIPEDIA_PASSWORD"] = creds.WikiPassword
	}
	for name, v := range required {
		if v == "" {
			return Credentials{}, fmt.Errorf("missing environment variable %s", name)
		}
	}

	return creds, nil
}
