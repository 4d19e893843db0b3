package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NCCommons/import-bot/pkg/config"
	"github.com/NCCommons/import-bot/pkg/logging"
	"github.com/NCCommons/import-bot/pkg/mediawiki"
	"github.com/NCCommons/import-bot/pkg/processor"
	"github.com/NCCommons/import-bot/pkg/retry"
	"github.com/NCCommons/import-bot/pkg/store"
	"github.com/NCCommons/import-bot/pkg/uploader"
	"github.com/NCCommons/import-bot/pkg/wikitext"
)

type runStats struct {
	pagesProcessed int
	pagesModified  int
	errors         int
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ncClient := mediawiki.NewClient(cfg.NCCommons.Host, mediawiki.Credentials{
		Username: creds.NCUsername,
		Password: creds.NCPassword,
	}, logger)
	source := mediawiki.NewSource(ncClient)

	languages, err := resolveLanguages(ctx, ncClient, cfg)
	if err != nil {
		return err
	}
	logger.Info("starting run", "languages", languages)

	policy := &retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.Delay(),
		Multiplier:   cfg.Retry.Backoff,
		Retryable:    mediawiki.IsTransient,
		Logger:       logger,
	}

	total := runStats{}
	for _, lang := range languages {
		if ctx.Err() != nil {
			logger.Warn("run interrupted")
			break
		}

		stats, err := processLanguage(ctx, lang, cfg, creds, source, db, policy, logger)
		total.pagesProcessed += stats.pagesProcessed
		total.pagesModified += stats.pagesModified
		total.errors += stats.errors
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("language failed", "lang", lang, "error", err)
		}
	}

	logger.Info("run finished",
		"pages_processed", total.pagesProcessed,
		"pages_modified", total.pagesModified,
		"errors", total.errors)
	return nil
}

// resolveLanguages honors --lang, otherwise reads the configured
// language list page on the source wiki.
func resolveLanguages(ctx context.Context, ncClient *mediawiki.Client, cfg *config.Config) ([]string, error) {
	if onlyLang != "" {
		return []string{onlyLang}, nil
	}

	text, err := ncClient.PageText(ctx, cfg.NCCommons.LanguageListPage)
	if err != nil {
		return nil, fmt.Errorf("fetch language list: %w", err)
	}

	languages := wikitext.ParseLanguageList(text)
	if len(languages) == 0 {
		return nil, fmt.Errorf("no languages found on %s", cfg.NCCommons.LanguageListPage)
	}
	return languages, nil
}

// processLanguage walks every marked page on one target wiki.
func processLanguage(ctx context.Context, lang string, cfg *config.Config, creds config.Credentials,
	source *mediawiki.Source, db *store.Store, policy *retry.Policy, logger *slog.Logger) (runStats, error) {

	log := logger.With("lang", lang)
	log.Info("processing language")

	wikiCreds := mediawiki.Credentials{
		Username: creds.WikiUsername,
		Password: creds.WikiPassword,
	}
	if creds.HasOAuth() {
		wikiCreds.OAuth = &mediawiki.OAuthCredentials{
			ConsumerKey:    creds.OAuthConsumerKey,
			ConsumerSecret: creds.OAuthConsumerSecret,
			AccessToken:    creds.OAuthAccessToken,
			AccessSecret:   creds.OAuthAccessSecret,
		}
	}

	client := mediawiki.NewClient(fmt.Sprintf("%s.wikipedia.org", lang), wikiCreds, logger)
	target := mediawiki.NewTarget(client, lang)

	up := uploader.New(source, target, db, uploader.Options{
		Comment:  cfg.Wikipedia.UploadComment,
		Category: cfg.Wikipedia.Category,
		Policy:   policy,
		Download: source.Client().HTTPClient(),
		Logger:   logger,
	})
	proc := processor.New(target, up, db, cfg.Wikipedia.Category, logger)

	pages, err := target.PagesEmbedding(ctx, cfg.Wikipedia.Template, cfg.Processing.MaxPagesPerLanguage)
	if err != nil {
		return runStats{}, fmt.Errorf("list pages: %w", err)
	}
	log.Info("found pages to process", "count", len(pages))

	stats := runStats{}
	for i, title := range pages {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		log.Info("processing page", "page", title, "n", i+1, "of", len(pages))
		modified, err := proc.ProcessPage(ctx, title)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return stats, err
			}
			stats.errors++
			log.Error("page failed", "page", title, "error", err)
			continue
		}

		stats.pagesProcessed++
		if modified {
			stats.pagesModified++
		}
	}

	log.Info("language finished",
		"pages_processed", stats.pagesProcessed,
		"pages_modified", stats.pagesModified,
		"errors", stats.errors)
	return stats, nil
}
