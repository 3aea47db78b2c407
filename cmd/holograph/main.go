package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"holograph/internal/config"
	"holograph/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string
	jsonLogs   bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "holograph",
	Short: "holograph - role-aware retrieval-augmented QA service",
	Long: `holograph answers questions over an ingested knowledge corpus.

Documents are analyzed into an explicate layer of literal chunks and an
implicate layer of concepts and frames connected by a typed graph. Queries
run dual-index retrieval with circuit-breaker protection and automatic
fallback, graph expansion, token-budgeted context packing, and an optional
bounded-latency review pass.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if jsonLogs {
			cfg.Logging.JSONFormat = true
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Init(logging.Options{
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		for _, warning := range cfg.Warnings() {
			fmt.Fprintln(os.Stderr, "config warning:", warning)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "holograph.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON-formatted logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(gateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
