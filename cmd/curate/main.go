// Command curate builds the county registry, reconciles the NYT and JHU feeds, and
// writes the cleaned cumulative tables and the long daily tables.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/covid-data-etl/internal/config"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	rebuildRegistry bool
	reprocessFeeds  bool
)

var rootCmd = &cobra.Command{
	Use:   "curate",
	Short: "Reconcile NYT and JHU county COVID-19 feeds",
	Long: `curate builds the county identifier registry, remaps both feeds onto it,
computes state, composite and metro totals, and writes cleaned cumulative
and daily tables to OUTPUT_DIR.

Settings come from the environment (a .env file is loaded when present).`,
	SilenceUsage: true,
	RunE:         runCurate,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rebuildRegistry, "rebuild-registry", true, "rebuild the registry from the reference tables (overrides REBUILD_REGISTRY)")
	rootCmd.PersistentFlags().BoolVar(&reprocessFeeds, "reprocess", true, "remap and aggregate the raw feeds (overrides REPROCESS_FEEDS)")

	rootCmd.AddCommand(runCmd, registryCmd, rulesCmd)
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies any flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if changed(cmd, "rebuild-registry") {
		cfg.RebuildRegistry = rebuildRegistry
	}
	if changed(cmd, "reprocess") {
		cfg.ReprocessFeeds = reprocessFeeds
	}
	return cfg, observability.NewLogger(cfg), nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}
