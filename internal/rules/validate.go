package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// Validate checks every table for malformed entries and overlapping catch-all
// policies. All problems are reported together; each wraps domain.ErrInvalidRule.
func Validate(t Table) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", domain.ErrInvalidRule, fmt.Sprintf(format, args...)))
	}

	checkRules := func(section string, list []Rule) {
		names := make(map[string]bool, len(list))
		for i, r := range list {
			where := fmt.Sprintf("%s[%d] %q", section, i, r.Name)
			if r.Name == "" {
				invalid("%s: missing name", where)
			} else if names[r.Name] {
				invalid("%s: duplicate name", where)
			}
			names[r.Name] = true

			if err := validateMatch(r.Match); err != nil {
				invalid("%s: %v", where, err)
			}
			switch {
			case r.Drop && r.Set != nil:
				invalid("%s: both set and drop", where)
			case !r.Drop && r.Set == nil:
				invalid("%s: no action", where)
			case r.Set != nil && r.Set.ID == 0 && r.Set.Region == "" && r.Set.Parent == "":
				invalid("%s: empty set", where)
			case r.Set != nil && r.Set.ID < 0:
				invalid("%s: negative id %d", where, r.Set.ID)
			}
		}
	}
	checkRules("corrections", t.Corrections)
	checkRules("cleanup", t.Cleanup)

	for src := range t.CatchAll.Buckets {
		if _, err := domain.ParseSource(src); err != nil {
			invalid("catch_all.buckets: %v", err)
		}
	}
	for i, p := range t.CatchAll.Policies {
		where := fmt.Sprintf("catch_all.policies[%d] %q", i, p.Name)
		if err := validatePolicy(p, t.CatchAll.Buckets[p.Source]); err != nil {
			invalid("%s: %v", where, err)
		}
	}
	for _, err := range policyOverlaps(t.CatchAll.Policies) {
		invalid("%v", err)
	}

	seen := make(map[int]bool, len(t.Placeholders))
	for i, p := range t.Placeholders {
		where := fmt.Sprintf("placeholders[%d] %q", i, p.Name)
		switch {
		case p.ID <= 0 || p.Into <= 0:
			invalid("%s: id and into are required", where)
		case seen[p.ID]:
			invalid("%s: duplicate id %d", where, p.ID)
		case p.ID/1000 != p.Into/1000:
			invalid("%s: %d folds into another state block (%d)", where, p.ID, p.Into)
		}
		seen[p.ID] = true
	}

	for src, ids := range t.Composites {
		if _, err := domain.ParseSource(src); err != nil {
			invalid("composites: %v", err)
		}
		for _, id := range ids {
			if id <= 0 {
				invalid("composites.%s: invalid id %d", src, id)
			}
		}
	}

	for i, fs := range t.Metros.FromState {
		if _, err := domain.ParseMetric(fs.Metric); err != nil {
			invalid("metros.from_state[%d]: %v", i, err)
		}
		if fs.Source != "" {
			if _, err := domain.ParseSource(fs.Source); err != nil {
				invalid("metros.from_state[%d]: %v", i, err)
			}
		}
	}
	for src := range t.Metros.Exclude {
		if _, err := domain.ParseSource(src); err != nil {
			invalid("metros.exclude: %v", err)
		}
	}

	return errors.Join(errs...)
}

func validateMatch(m Match) error {
	if m.Source != "" {
		if _, err := domain.ParseSource(m.Source); err != nil {
			return err
		}
	}
	if m.Metric != "" {
		if _, err := domain.ParseMetric(m.Metric); err != nil {
			return err
		}
	}
	if m.Option != "" && !slices.Contains(KnownOptions, m.Option) {
		return fmt.Errorf("unknown option %q", m.Option)
	}
	from, to, err := m.Window()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("to %s before from %s", m.To, m.From)
	}
	if m.Source == "" && m.Metric == "" && m.Region == "" && m.Parent == "" &&
		len(m.IDs) == 0 && len(m.IDBlocks) == 0 && len(m.RegionNot) == 0 {
		return errors.New("predicate matches everything")
	}
	return nil
}

func validatePolicy(p Policy, buckets []string) error {
	if _, err := domain.ParseSource(p.Source); err != nil {
		return err
	}
	if p.Metric != "" {
		if _, err := domain.ParseMetric(p.Metric); err != nil {
			return err
		}
	}
	if p.Parent == "" || p.Region == "" {
		return errors.New("parent and region are required")
	}
	if !MatchesAny(buckets, p.Region) {
		return fmt.Errorf("region %q is not a %s catch-all bucket", p.Region, p.Source)
	}
	switch p.Treatment {
	case TreatState, TreatDrop:
		if p.Unit != 0 {
			return fmt.Errorf("treatment %s takes no unit", p.Treatment)
		}
	case TreatUnit:
		if p.Unit <= 0 || p.UnitRegion == "" {
			return errors.New("treatment unit requires unit and unit_region")
		}
	default:
		return fmt.Errorf("unknown treatment %q", p.Treatment)
	}
	from, to, err := p.Window()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("to %s before from %s", p.To, p.From)
	}
	return nil
}

// policyOverlaps reports pairs of policies that could both claim the same row: same
// source, parent and bucket, overlapping metrics and overlapping date windows.
func policyOverlaps(policies []Policy) []error {
	var errs []error
	for i := range policies {
		for j := i + 1; j < len(policies); j++ {
			a, b := policies[i], policies[j]
			if a.Source != b.Source ||
				domain.FoldName(a.Parent) != domain.FoldName(b.Parent) ||
				domain.FoldName(a.Region) != domain.FoldName(b.Region) {
				continue
			}
			if a.Metric != "" && b.Metric != "" && a.Metric != b.Metric {
				continue
			}
			aFrom, aTo, errA := a.Window()
			bFrom, bTo, errB := b.Window()
			if errA != nil || errB != nil {
				continue
			}
			if windowsOverlap(aFrom, aTo, bFrom, bTo) {
				errs = append(errs, fmt.Errorf("catch_all policies %q and %q overlap", a.Name, b.Name))
			}
		}
	}
	return errs
}

func windowsOverlap(aFrom, aTo, bFrom, bTo time.Time) bool {
	// open bounds extend to infinity on their side
	if !aTo.IsZero() && !bFrom.IsZero() && aTo.Before(bFrom) {
		return false
	}
	if !bTo.IsZero() && !aFrom.IsZero() && bTo.Before(aFrom) {
		return false
	}
	return true
}

// MatchesName compares a region or parent name against a pattern. Comparison is
// case-folded; a trailing "*" matches by prefix.
func MatchesName(pattern, name string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(domain.FoldName(name), domain.FoldName(prefix))
	}
	return domain.FoldName(pattern) == domain.FoldName(name)
}

// MatchesAny reports whether name matches any of the patterns.
func MatchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchesName(p, name) {
			return true
		}
	}
	return false
}
