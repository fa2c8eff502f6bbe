package remap

import (
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
)

// Stage names used in hit counts and logs.
const (
	StageCorrections = "corrections"
	StageCatchAll    = "catch_all"
	StageCleanup     = "cleanup"
)

// DefaultDropRule is the name reported for bucket rows no policy claimed.
const DefaultDropRule = "catch-all-default"

type predicate struct {
	source    domain.Source
	metric    domain.Metric
	region    string
	parent    string
	regionNot []string
	ids       []domain.UnitID
	blocks    []int
	from, to  time.Time
}

func (p *predicate) matches(o *domain.RawObservation, metric domain.Metric) bool {
	if p.source != "" && p.source != o.Source {
		return false
	}
	if p.metric != "" && p.metric != metric {
		return false
	}
	if p.region != "" && !rules.MatchesName(p.region, o.Region) {
		return false
	}
	if p.parent != "" && !rules.MatchesName(p.parent, o.Parent) {
		return false
	}
	if rules.MatchesAny(p.regionNot, o.Region) {
		return false
	}
	if len(p.ids) > 0 || len(p.blocks) > 0 {
		if !o.HasID {
			return false
		}
		if !slices.Contains(p.ids, o.RawID) && !slices.Contains(p.blocks, o.RawID.StateCode()) {
			return false
		}
	}
	return rules.InWindow(o.Date, p.from, p.to)
}

type action struct {
	drop   bool
	id     domain.UnitID
	region string
	parent string
}

func (a action) apply(o *domain.RawObservation) {
	if a.id != 0 {
		o.RawID, o.HasID = a.id, true
	}
	if a.region != "" {
		o.Region = a.region
	}
	if a.parent != "" {
		o.Parent = a.parent
	}
}

type compiledRule struct {
	name  string
	stage string
	pred  predicate
	act   action
}

func compileMatch(m rules.Match) (predicate, error) {
	from, to, err := m.Window()
	if err != nil {
		return predicate{}, err
	}
	p := predicate{
		source:    domain.Source(m.Source),
		metric:    domain.Metric(m.Metric),
		region:    m.Region,
		parent:    m.Parent,
		regionNot: m.RegionNot,
		blocks:    m.IDBlocks,
		from:      from,
		to:        to,
	}
	for _, id := range m.IDs {
		p.ids = append(p.ids, domain.UnitID(id))
	}
	return p, nil
}

func compileRules(stage string, list []rules.Rule, opts Options) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(list))
	for _, r := range list {
		if r.Match.Option != "" && !opts.enabled(r.Match.Option) {
			continue
		}
		pred, err := compileMatch(r.Match)
		if err != nil {
			return nil, fmt.Errorf("compile %s rule %q: %w", stage, r.Name, err)
		}
		act := action{drop: r.Drop}
		if r.Set != nil {
			act.id = domain.UnitID(r.Set.ID)
			act.region = r.Set.Region
			act.parent = r.Set.Parent
		}
		out = append(out, compiledRule{name: r.Name, stage: stage, pred: pred, act: act})
	}
	return out, nil
}

// compileCatchAll turns each policy into a rule and appends one default drop per
// source for bucket rows the policies left alone. State treatments resolve the parent
// name against the registry here, so an unknown state fails at construction.
func compileCatchAll(ca rules.CatchAll, reg *registry.Registry) ([]compiledRule, error) {
	var out []compiledRule
	for _, p := range ca.Policies {
		from, to, err := p.Window()
		if err != nil {
			return nil, fmt.Errorf("compile policy %q: %w", p.Name, err)
		}
		pred := predicate{
			source: domain.Source(p.Source),
			metric: domain.Metric(p.Metric),
			region: p.Region,
			parent: p.Parent,
			from:   from,
			to:     to,
		}

		var act action
		switch p.Treatment {
		case rules.TreatState:
			code, ok := reg.StateByName(p.Parent)
			if !ok {
				return nil, fmt.Errorf("compile policy %q: %w: state %q", p.Name, domain.ErrMissingReferenceEntry, p.Parent)
			}
			act = action{id: domain.StateUnitID(code), region: "All"}
		case rules.TreatUnit:
			act = action{id: domain.UnitID(p.Unit), region: p.UnitRegion}
		case rules.TreatDrop:
			act = action{drop: true}
		default:
			return nil, fmt.Errorf("compile policy %q: %w: treatment %q", p.Name, domain.ErrInvalidRule, p.Treatment)
		}
		out = append(out, compiledRule{name: p.Name, stage: StageCatchAll, pred: pred, act: act})
	}

	for _, src := range domain.Sources {
		for _, bucket := range ca.Buckets[string(src)] {
			out = append(out, compiledRule{
				name:  DefaultDropRule,
				stage: StageCatchAll,
				pred:  predicate{source: src, region: bucket},
				act:   action{drop: true},
			})
		}
	}
	return out, nil
}
