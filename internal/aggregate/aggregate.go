// Package aggregate builds derived series (state totals, named composites and metro
// totals) from county series already mapped onto registry identifiers.
package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
)

// Mode controls what happens to the members of a composed entry.
type Mode int

const (
	// Additive keeps the members; the target must not exist yet.
	Additive Mode = iota
	// Replace removes the members; the target may be one of them.
	Replace
)

// Label names an aggregate entry.
type Label struct {
	ID     domain.UnitID
	Region string
	Parent string
}

// Sum returns a new entry whose value on each date is the sum of the member values.
// Members absent from the set contribute zero.
func Sum(set *domain.SeriesSet, members []domain.UnitID, label Label) *domain.SeriesEntry {
	values := make([]int64, set.Range.Len())
	for _, m := range members {
		e, ok := set.Get(m)
		if !ok {
			continue
		}
		for i, v := range e.Values {
			values[i] += v
		}
	}
	return &domain.SeriesEntry{ID: label.ID, Region: label.Region, Parent: label.Parent, Values: values}
}

// Compose stores the sum of members under label.ID.
func Compose(set *domain.SeriesSet, label Label, members []domain.UnitID, mode Mode) error {
	if mode == Additive && set.Has(label.ID) {
		return fmt.Errorf("compose %s: %w", label.ID, domain.ErrCompositeExists)
	}
	entry := Sum(set, members, label)
	if mode == Replace {
		for _, m := range members {
			set.Delete(m)
		}
	}
	return set.Put(entry)
}

// Report counts what one Run produced.
type Report struct {
	PlaceholdersFolded int
	StateTotals        int
	Composites         int
	Metros             int
	MetrosFromState    int
	SkippedComposites  []domain.UnitID
}

// Aggregator runs the aggregation plan for one (source, metric) series set.
type Aggregator struct {
	reg          *registry.Registry
	placeholders []rules.Placeholder
	composites   map[domain.Source][]domain.UnitID
	wide         map[int]bool
	fromState    []rules.FromState
	exclude      map[domain.Source][]int
	logger       *slog.Logger
}

// New prepares an aggregator from the placeholder, composite and metro tables.
func New(reg *registry.Registry, table rules.Table, logger *slog.Logger) *Aggregator {
	a := &Aggregator{
		reg:          reg,
		placeholders: table.Placeholders,
		composites:   make(map[domain.Source][]domain.UnitID),
		wide:         make(map[int]bool),
		fromState:    table.Metros.FromState,
		exclude:      make(map[domain.Source][]int),
		logger:       logger,
	}
	for src, ids := range table.Composites {
		for _, id := range ids {
			a.composites[domain.Source(src)] = append(a.composites[domain.Source(src)], domain.UnitID(id))
		}
	}
	for _, m := range table.Metros.WideMembership {
		a.wide[m] = true
	}
	for src, metros := range table.Metros.Exclude {
		a.exclude[domain.Source(src)] = metros
	}
	return a
}

// Run executes, in order: placeholder folds, state totals, source composites, metro
// totals. The set is modified in place.
func (a *Aggregator) Run(set *domain.SeriesSet) (Report, error) {
	var report Report

	n, err := a.foldPlaceholders(set)
	if err != nil {
		return report, err
	}
	report.PlaceholdersFolded = n

	if err := a.checkMembership(set); err != nil {
		return report, err
	}

	if report.StateTotals, err = a.stateTotals(set); err != nil {
		return report, err
	}

	built, skipped, err := a.sourceComposites(set)
	if err != nil {
		return report, err
	}
	report.Composites, report.SkippedComposites = built, skipped

	if report.Metros, report.MetrosFromState, err = a.metros(set); err != nil {
		return report, err
	}

	a.logger.Info("aggregation complete",
		"source", string(set.Source),
		"metric", string(set.Metric),
		"placeholders", report.PlaceholdersFolded,
		"states", report.StateTotals,
		"composites", report.Composites,
		"metros", report.Metros,
	)
	return report, nil
}

func (a *Aggregator) label(id domain.UnitID) Label {
	u, ok := a.reg.Unit(id)
	if !ok {
		return Label{ID: id}
	}
	return Label{ID: id, Region: u.Name, Parent: u.State}
}

func (a *Aggregator) foldPlaceholders(set *domain.SeriesSet) (int, error) {
	folded := 0
	for _, p := range a.placeholders {
		from, into := domain.UnitID(p.ID), domain.UnitID(p.Into)
		if !set.Has(from) {
			continue
		}
		label := a.label(into)
		if e, ok := set.Get(into); ok {
			label.Region, label.Parent = e.Region, e.Parent
		}
		if err := Compose(set, label, []domain.UnitID{from, into}, Replace); err != nil {
			return folded, fmt.Errorf("fold placeholder %s: %w", from, err)
		}
		folded++
	}
	return folded, nil
}

// checkMembership fails when a composite and one of its members are both present,
// since the state total would count them twice. The rules table is expected to fold
// such members away, so the error names the member needing a rule.
func (a *Aggregator) checkMembership(set *domain.SeriesSet) error {
	var errs []error
	for _, id := range set.IDs() {
		comp, ok := a.reg.CompositeOf(id)
		if !ok || !set.Has(comp) {
			continue
		}
		if u, _ := a.reg.Unit(comp); u.Kind != domain.KindComposite {
			continue
		}
		errs = append(errs, fmt.Errorf("%w: %s and its composite %s both present; add a rules-table drop or remap for %s (source %s)",
			domain.ErrAmbiguousCompositeMembership, id, comp, id, set.Source))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s %s state totals: %w", set.Source, set.Metric, err)
	}
	return nil
}

func (a *Aggregator) stateTotals(set *domain.SeriesSet) (int, error) {
	blocks := make(map[int][]domain.UnitID)
	for _, id := range set.IDs() {
		if s := id.StateCode(); s != domain.MetroStateCode {
			blocks[s] = append(blocks[s], id)
		}
	}

	for _, s := range slices.Sorted(maps.Keys(blocks)) {
		total := domain.StateUnitID(s)
		temp := total + 999
		members := blocks[s]
		if set.Has(total) {
			// A reported "All" row is state-level data not attributed to any county.
			if err := set.Relabel(total, temp); err != nil {
				return 0, fmt.Errorf("state total %s: %w", total, err)
			}
			members = slices.DeleteFunc(slices.Clone(members), func(id domain.UnitID) bool { return id == total })
			members = append(members, temp)
		}
		label := a.label(total)
		label.Region = "All"
		if err := Compose(set, label, members, Additive); err != nil {
			return 0, fmt.Errorf("state total %s: %w", total, err)
		}
		set.Delete(temp)
	}
	return len(blocks), nil
}

func (a *Aggregator) sourceComposites(set *domain.SeriesSet) (int, []domain.UnitID, error) {
	built := 0
	var skipped []domain.UnitID
	for _, id := range a.composites[set.Source] {
		u, ok := a.reg.Unit(id)
		if !ok {
			return built, skipped, fmt.Errorf("composite %s: %w", id, domain.ErrMissingReferenceEntry)
		}
		if !anyPresent(set, u.Members) {
			skipped = append(skipped, id)
			a.logger.Debug("composite has no member series", "source", string(set.Source), "fips", id.String())
			continue
		}
		if err := Compose(set, a.label(id), u.Members, Additive); err != nil {
			return built, skipped, fmt.Errorf("%s composite: %w", set.Source, err)
		}
		built++
	}
	return built, skipped, nil
}

func (a *Aggregator) metros(set *domain.SeriesSet) (int, int, error) {
	built, fromState := 0, 0
	excluded := a.exclude[set.Source]
	for _, metro := range a.reg.Metros() {
		if slices.Contains(excluded, metro) {
			continue
		}

		var members []domain.UnitID
		viaState := a.usesStateTotal(set, metro)
		if viaState {
			state, ok := a.reg.MetroState(metro)
			if !ok {
				continue
			}
			members = []domain.UnitID{domain.StateUnitID(state)}
		} else {
			members = a.reg.MetroMembers(metro, a.wide[metro])
		}
		if !anyPresent(set, members) {
			continue
		}

		id := domain.MetroUnitID(metro)
		label := a.label(id)
		label.Parent = ""
		if err := Compose(set, label, members, Additive); err != nil {
			return built, fromState, fmt.Errorf("metro %d: %w", metro, err)
		}
		built++
		if viaState {
			fromState++
		}
	}
	return built, fromState, nil
}

func (a *Aggregator) usesStateTotal(set *domain.SeriesSet, metro int) bool {
	for _, fs := range a.fromState {
		if domain.Metric(fs.Metric) != set.Metric {
			continue
		}
		if fs.Source != "" && domain.Source(fs.Source) != set.Source {
			continue
		}
		if slices.Contains(fs.Metros, metro) {
			return true
		}
	}
	return false
}

func anyPresent(set *domain.SeriesSet, ids []domain.UnitID) bool {
	return slices.ContainsFunc(ids, set.Has)
}
