package main

import (
	"github.com/spf13/cobra"

	"docvet/internal/config"
	"docvet/internal/logging"
)

var (
	// Global flags
	cfgPath string
	dbPath  string
	verbose bool

	// Loaded configuration, shared by every subcommand.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docvet",
	Short: "docvet - Markdown validation and enhancement server",
	Long: `docvet validates Markdown content against rule documents, routes approved
files through LLM enhancement, and tracks recommendations and workflows in
a local SQLite database.

It speaks newline-delimited JSON-RPC 2.0 over stdio and, when enabled, the
same dispatcher over HTTP with a WebSocket endpoint and Prometheus metrics.

Run "docvet serve" to start the server, or "docvet call METHOD" for a
one-shot dispatch against the local database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "docvet.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
