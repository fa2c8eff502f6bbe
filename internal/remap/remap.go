// Package remap maps raw feed rows onto canonical registry identifiers.
//
// Rules run in a fixed order: corrections, catch-all policies, the catch-all default
// drop, then cleanup. Each matching rule rewrites the running observation and a drop
// ends evaluation. Whatever survives must name a registry unit or a declared
// placeholder, otherwise it is dropped as unresolved.
package remap

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
)

// Options enables toggled rules.
type Options struct {
	DropJHUCruise  bool
	DropJHUPrisons bool
}

func (o Options) enabled(option string) bool {
	switch option {
	case rules.OptionDropJHUCruise:
		return o.DropJHUCruise
	case rules.OptionDropJHUPrisons:
		return o.DropJHUPrisons
	default:
		return false
	}
}

// Report summarizes one Apply call.
type Report struct {
	Input            int
	Kept             int
	DroppedByRule    map[string]int
	Unresolved       int
	UnresolvedPlaces []*domain.UnresolvedError
	RuleHits         map[string]int
}

// Dropped returns the total number of rows dropped by rules or as unresolved.
func (r Report) Dropped() int {
	n := r.Unresolved
	for _, c := range r.DroppedByRule {
		n += c
	}
	return n
}

type placeKey struct {
	source         domain.Source
	parent, region string
}

// Remapper applies a compiled rule table. It is not safe for concurrent use: it
// remembers which unresolved places were already logged.
type Remapper struct {
	rules        []compiledRule
	reg          *registry.Registry
	placeholders map[domain.UnitID]bool
	logger       *slog.Logger
	warned       map[placeKey]bool
}

// New compiles a rule table against the registry.
func New(table rules.Table, reg *registry.Registry, opts Options, logger *slog.Logger) (*Remapper, error) {
	corrections, err := compileRules(StageCorrections, table.Corrections, opts)
	if err != nil {
		return nil, err
	}
	catchAll, err := compileCatchAll(table.CatchAll, reg)
	if err != nil {
		return nil, err
	}
	cleanup, err := compileRules(StageCleanup, table.Cleanup, opts)
	if err != nil {
		return nil, err
	}

	placeholders := make(map[domain.UnitID]bool, len(table.Placeholders))
	for _, p := range table.Placeholders {
		if reg.Has(domain.UnitID(p.ID)) {
			return nil, fmt.Errorf("placeholder %q: %w: id %d is a registry unit", p.Name, domain.ErrInvalidRule, p.ID)
		}
		placeholders[domain.UnitID(p.ID)] = true
	}

	all := slices.Concat(corrections, catchAll, cleanup)
	return &Remapper{
		rules:        all,
		reg:          reg,
		placeholders: placeholders,
		logger:       logger,
		warned:       make(map[placeKey]bool),
	}, nil
}

// IsPlaceholder reports whether id is a declared placeholder.
func (r *Remapper) IsPlaceholder(id domain.UnitID) bool {
	return r.placeholders[id]
}

// Apply remaps every observation for one metric. The input is not modified.
func (r *Remapper) Apply(obs []domain.RawObservation, metric domain.Metric) ([]domain.RemappedObservation, Report) {
	report := Report{
		Input:         len(obs),
		DroppedByRule: make(map[string]int),
		RuleHits:      make(map[string]int),
	}
	out := make([]domain.RemappedObservation, 0, len(obs))
	listed := make(map[placeKey]bool)

	for _, o := range obs {
		cur := o
		dropped := ""
		for i := range r.rules {
			rule := &r.rules[i]
			if !rule.pred.matches(&cur, metric) {
				continue
			}
			report.RuleHits[rule.name]++
			if rule.act.drop {
				dropped = rule.name
				break
			}
			rule.act.apply(&cur)
		}
		if dropped != "" {
			report.DroppedByRule[dropped]++
			continue
		}

		if !cur.HasID || (!r.reg.Has(cur.RawID) && !r.placeholders[cur.RawID]) {
			report.Unresolved++
			r.noteUnresolved(&report, listed, cur)
			continue
		}

		out = append(out, domain.RemappedObservation{
			Source: cur.Source,
			ID:     cur.RawID,
			Region: cur.Region,
			Parent: cur.Parent,
			Date:   cur.Date,
			Cases:  cur.Cases,
			Deaths: cur.Deaths,
		})
	}
	report.Kept = len(out)
	return out, report
}

// noteUnresolved lists each unresolved place once per report and logs it once per
// Remapper.
func (r *Remapper) noteUnresolved(report *Report, listed map[placeKey]bool, o domain.RawObservation) {
	key := placeKey{source: o.Source, parent: domain.FoldName(o.Parent), region: domain.FoldName(o.Region)}
	if listed[key] {
		return
	}
	listed[key] = true

	uerr := &domain.UnresolvedError{Source: o.Source, Region: o.Region, Parent: o.Parent, RawID: o.RawID, HasID: o.HasID}
	report.UnresolvedPlaces = append(report.UnresolvedPlaces, uerr)
	if r.warned[key] {
		return
	}
	r.warned[key] = true
	r.logger.Warn("dropping unresolved record",
		"source", string(o.Source),
		"region", o.Region,
		"parent", o.Parent,
		"error", uerr,
	)
}
