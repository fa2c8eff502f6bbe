package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/couchcryptid/covid-data-etl/internal/config"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var dumpRules bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate the rule table (RULES_FILE, or the built-in one)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		table, err := rules.Load(cfg.RulesFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if dumpRules {
			data, err := yaml.Marshal(table)
			if err != nil {
				return fmt.Errorf("encode rules: %w", err)
			}
			_, err = out.Write(data)
			return err
		}

		source := cfg.RulesFile
		if source == "" {
			source = "built-in"
		}
		fmt.Fprintf(out, "rules:         %s\n", source)
		fmt.Fprintf(out, "corrections:   %d\n", len(table.Corrections))
		fmt.Fprintf(out, "policies:      %d\n", len(table.CatchAll.Policies))
		fmt.Fprintf(out, "cleanup:       %d\n", len(table.Cleanup))
		fmt.Fprintf(out, "placeholders:  %d\n", len(table.Placeholders))
		for _, src := range slices.Sorted(maps.Keys(table.Composites)) {
			fmt.Fprintf(out, "composites %-3s %d\n", src, len(table.Composites[src]))
		}
		return nil
	},
}

func init() {
	rulesCmd.Flags().BoolVar(&dumpRules, "dump", false, "print the parsed table as YAML")
}
