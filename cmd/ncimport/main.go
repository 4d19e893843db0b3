package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NCCommons/import-bot/pkg/config"
	"github.com/NCCommons/import-bot/pkg/report"
	"github.com/NCCommons/import-bot/pkg/store"
)

var (
	// Version information (set by ldflags during build)
	version = "dev"
	commit  = "unknown"

	// Global flags
	configPath string

	// Run flags
	onlyLang string

	// Stats flags
	statsLang string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ncimport",
		Short: "Import NC Commons files into Wikipedia",
		Long: `ncimport finds wiki pages carrying the {{NC}} marker, imports the
referenced files from NC Commons into the target Wikipedia, rewrites the
markers into embedded-file syntax, and records every outcome so it is
never repeated.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ncimport version %s\n", version)
			if version != "dev" {
				fmt.Printf("  commit: %s\n", commit)
			}
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process all configured languages",
		RunE:  runCommand,
	}
	runCmd.Flags().StringVar(&onlyLang, "lang", "", "Process only this language code")

	reportCmd := &cobra.Command{
		Use:   "report [output.json]",
		Short: "Generate an activity report from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE:  reportCommand,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show upload and page counts",
		RunE:  statsCommand,
	}
	statsCmd.Flags().StringVar(&statsLang, "lang", "", "Limit counts to one language")

	rootCmd.AddCommand(versionCmd, runCmd, reportCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func reportCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	reporter := report.New(db)

	if len(args) == 1 {
		if err := reporter.Save(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", args[0])
		return nil
	}

	summary, err := reporter.Summary(context.Background())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func statsCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Statistics(context.Background(), statsLang)
	if err != nil {
		return err
	}

	if statsLang != "" {
		fmt.Printf("Language: %s\n", statsLang)
	}
	fmt.Printf("Successful uploads: %d\n", stats.TotalUploads)
	fmt.Printf("Pages processed:    %d\n", stats.TotalPages)
	return nil
}
