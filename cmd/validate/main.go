// Command validate checks the integrity of a finished curation run: the persisted
// registry, the cleaned cumulative tables, and the long daily tables in an output
// directory. It verifies composite sums, gap-free daily series, and that the daily
// tables reconstruct the cleaned tables exactly.
//
// Usage:
//
//	go run ./cmd/validate -output-dir data/output
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/normalize"
	"github.com/couchcryptid/covid-data-etl/internal/pipeline"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// series is everything read back for one source and metric.
type series struct {
	source  domain.Source
	metric  domain.Metric
	cleaned *domain.SeriesSet
	daily   []domain.DailyRow
}

func (s series) String() string { return string(s.source) + " " + string(s.metric) }

func main() {
	outputDir := flag.String("output-dir", "data/output", "directory written by the curate command")
	registryFile := flag.String("registry", "", "registry CSV (default <output-dir>/UScounty_fips_dma.csv)")
	flag.Parse()

	if *registryFile == "" {
		*registryFile = filepath.Join(*outputDir, "UScounty_fips_dma.csv")
	}
	if code := run(*outputDir, *registryFile); code != 0 {
		os.Exit(code)
	}
}

func run(outputDir, registryPath string) int {
	ctx := context.Background()
	fmt.Println("=== COVID County Data Integrity Validation ===")
	fmt.Println()

	reg, err := csvfile.RegistryFile{Path: registryPath}.LoadRegistry(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load registry: %v\n", err)
		return 1
	}

	outputs := csvfile.Outputs{Dir: outputDir}
	var all []series
	for _, src := range domain.Sources {
		for _, m := range domain.Metrics {
			s := series{source: src, metric: m}
			if s.cleaned, err = outputs.LoadCleaned(ctx, src, m); err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: load %s cleaned: %v\n", s, err)
				return 1
			}
			if s.daily, err = outputs.ReadDaily(src, m); err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: load %s daily: %v\n", s, err)
				return 1
			}
			all = append(all, s)
		}
	}

	phases := []*phase{
		validateRegistry(reg),
		validateUnits(reg, all),
		validateComposites(reg, all),
		validateDaily(all),
		validateRoundTrip(all),
		validateSummary(outputs.SummaryPath(), all),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Registry: %d units\n", reg.Len())
	for _, s := range all {
		fmt.Printf("%-12s %d units, %d daily rows\n", s.String()+":", s.cleaned.Len(), len(s.daily))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Registry ──
// Composite members must exist and be marked part-of-composite; every state block
// has its "All" unit; metro units live in the reserved block.

func validateRegistry(reg *registry.Registry) *phase {
	p := &phase{name: "Phase 1: Registry structure"}

	blocks := make(map[int]bool)
	for _, u := range reg.Units() {
		switch u.Kind {
		case domain.KindComposite:
			if len(u.Members) == 0 {
				p.errorf("composite %s has no members", u.ID)
			}
			for _, m := range u.Members {
				mu, ok := reg.Unit(m)
				if !ok {
					continue
				}
				if mu.Kind != domain.KindPartOfComposite {
					p.errorf("composite %s member %s has kind %q", u.ID, m, mu.Kind)
				}
			}
		case domain.KindMetro:
			if u.ID.StateCode() != domain.MetroStateCode {
				p.errorf("metro unit %s outside the metro block", u.ID)
			}
			continue
		case domain.KindState:
			if !u.ID.IsStateTotal() {
				p.errorf("state unit %s is not a state total id", u.ID)
			}
		}
		blocks[u.ID.StateCode()] = true
	}
	for block := range blocks {
		if !reg.Has(domain.StateUnitID(block)) {
			p.errorf("state block %d has no All unit", block)
		}
	}
	return p
}

// ── Phase 2: Units ──
// Every published identifier resolves against the registry.

func validateUnits(reg *registry.Registry, all []series) *phase {
	p := &phase{name: "Phase 2: Unit resolution"}
	for _, s := range all {
		for _, id := range s.cleaned.IDs() {
			if !reg.Has(id) {
				p.errorf("%s: unit %s not in registry", s, id)
			}
		}
	}
	return p
}

// ── Phase 3: Composites ──
// A composite with member series equals the sum of those members on every date.

func validateComposites(reg *registry.Registry, all []series) *phase {
	p := &phase{name: "Phase 3: Composite sums"}
	for _, s := range all {
		for _, u := range reg.Units() {
			if u.Kind != domain.KindComposite {
				continue
			}
			comp, ok := s.cleaned.Get(u.ID)
			if !ok {
				continue
			}
			sum := make([]int64, len(comp.Values))
			present := 0
			for _, m := range u.Members {
				e, ok := s.cleaned.Get(m)
				if !ok {
					continue
				}
				present++
				for i, v := range e.Values {
					sum[i] += v
				}
			}
			if present > 0 && !slices.Equal(sum, comp.Values) {
				p.errorf("%s: composite %s differs from the sum of its %d member series", s, u.ID, present)
			}
		}
	}
	return p
}

// ── Phase 4: Daily tables ──
// Each unit covers the full range with no gaps, the first date has no daily value,
// and every daily value is the difference of consecutive cumulative values.

func validateDaily(all []series) *phase {
	p := &phase{name: "Phase 4: Daily tables (gap-free)"}
	for _, s := range all {
		rng := s.cleaned.Range
		byUnit := make(map[domain.UnitID][]domain.DailyRow)
		for _, r := range s.daily {
			byUnit[r.ID] = append(byUnit[r.ID], r)
		}
		if len(byUnit) != s.cleaned.Len() {
			p.errorf("%s: daily table has %d units, cleaned table has %d", s, len(byUnit), s.cleaned.Len())
		}
		for id, rows := range byUnit {
			if len(rows) != rng.Len() {
				p.errorf("%s: unit %s has %d daily rows, want %d", s, id, len(rows), rng.Len())
				continue
			}
			for i, r := range rows {
				if !r.Date.Equal(rng.Date(i)) {
					p.errorf("%s: unit %s row %d dated %s, want %s", s, id, i, r.Date.Format(time.DateOnly), rng.Date(i).Format(time.DateOnly))
					break
				}
				if i == 0 {
					if r.HasDaily {
						p.errorf("%s: unit %s has a daily value on the first date", s, id)
					}
					continue
				}
				if !r.HasDaily || r.Daily != r.Cumulative-rows[i-1].Cumulative {
					p.errorf("%s: unit %s daily value on %s does not match cumulative change", s, id, r.Date.Format(time.DateOnly))
				}
			}
		}
	}
	return p
}

// ── Phase 5: Round trip ──
// Summing the daily table reproduces the cleaned table exactly.

func validateRoundTrip(all []series) *phase {
	p := &phase{name: "Phase 5: Daily reconstructs cleaned"}
	for _, s := range all {
		rebuilt := normalize.Reconstruct(s.daily)
		for _, e := range s.cleaned.Entries() {
			if !slices.Equal(rebuilt[e.ID], e.Values) {
				p.errorf("%s: unit %s does not round-trip", s, e.ID)
			}
		}
	}
	return p
}

// ── Phase 6: Run summary ──

func validateSummary(path string, all []series) *phase {
	p := &phase{name: "Phase 6: Run summary"}
	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read summary: %v", err)
		return p
	}
	var summary pipeline.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		p.errorf("decode summary: %v", err)
		return p
	}
	if len(summary.Series) != len(all) {
		p.errorf("summary lists %d series, found %d", len(summary.Series), len(all))
		return p
	}
	for i, s := range all {
		got := summary.Series[i]
		if got.Source != string(s.source) || got.Metric != string(s.metric) {
			p.errorf("summary series %d is %s %s, want %s", i, got.Source, got.Metric, s)
			continue
		}
		if got.DailyRows != len(s.daily) {
			p.errorf("%s: summary reports %d daily rows, table has %d", s, got.DailyRows, len(s.daily))
		}
	}
	return p
}
