// Command genmock writes a small, internally consistent set of reference tables and
// NYT/JHU feeds covering the special cases of the built-in rule table, plus an env
// file pointing the curate command at them.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	set -a && . data/mock/mock.env && set +a && go run ./cmd/curate
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/mockdata"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory for the generated inputs")
	outputDir := flag.String("output-dir", "", "OUTPUT_DIR written to the env file (default <out>/output)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *outputDir == "" {
		*outputDir = filepath.Join(*out, "output")
	}

	paths, err := mockdata.Write(*out)
	if err != nil {
		return err
	}

	env := map[string]string{
		"COUNTY_REFERENCE_PATH": paths.Counties,
		"STATE_REFERENCE_PATH":  paths.States,
		"METRO_REFERENCE_PATH":  paths.Metros,
		"NYT_FEED_PATH":         paths.NYT,
		"JHU_CASES_PATH":        paths.JHUCases,
		"JHU_DEATHS_PATH":       paths.JHUDeaths,
		"OUTPUT_DIR":            *outputDir,
	}
	envPath := filepath.Join(*out, "mock.env")
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}

	end := mockdata.Start.AddDate(0, 0, mockdata.Days-1)
	fmt.Fprintf(os.Stdout, "Wrote mock inputs for %s..%s\n", mockdata.Start.Format(time.DateOnly), end.Format(time.DateOnly))
	for _, p := range []string{paths.Counties, paths.States, paths.Metros, paths.NYT, paths.JHUCases, paths.JHUDeaths, envPath} {
		fmt.Fprintf(os.Stdout, "  %s\n", p)
	}
	return nil
}
