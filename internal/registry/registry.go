// Package registry builds and serves the canonical set of geographic units.
//
// A Registry is immutable once constructed. Every component receives it explicitly
// and only reads from it.
package registry

import (
	"fmt"
	"maps"
	"slices"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// Registry is the read-only set of geographic units with precomputed groupings.
type Registry struct {
	units       map[domain.UnitID]domain.GeographicUnit
	ids         []domain.UnitID
	byState     map[int][]domain.UnitID
	byMetro     map[int][]domain.UnitID
	stateByName map[string]int
	compositeOf map[domain.UnitID]domain.UnitID
}

// New indexes a unit list. Duplicate identifiers and units claimed by two composites
// are configuration errors.
func New(units []domain.GeographicUnit) (*Registry, error) {
	r := &Registry{
		units:       make(map[domain.UnitID]domain.GeographicUnit, len(units)),
		byState:     make(map[int][]domain.UnitID),
		byMetro:     make(map[int][]domain.UnitID),
		stateByName: make(map[string]int),
		compositeOf: make(map[domain.UnitID]domain.UnitID),
	}

	for _, u := range units {
		if _, dup := r.units[u.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate unit %s", u.ID)
		}
		u.Members = slices.Clone(u.Members)
		r.units[u.ID] = u
	}
	r.ids = slices.Sorted(maps.Keys(r.units))

	for _, id := range r.ids {
		u := r.units[id]
		switch u.Kind {
		case domain.KindState:
			if u.State != "" {
				r.stateByName[domain.FoldName(u.State)] = u.StateCode
			}
		case domain.KindMetro:
		default:
			r.byState[u.StateCode] = append(r.byState[u.StateCode], id)
			if u.HasMetro() {
				r.byMetro[u.Metro] = append(r.byMetro[u.Metro], id)
			}
		}

		if u.Kind == domain.KindComposite || u.Kind == domain.KindOther {
			for _, m := range u.Members {
				if prev, ok := r.compositeOf[m]; ok {
					return nil, fmt.Errorf("registry: %w", &domain.MembershipError{Unit: m, First: prev, Second: id})
				}
				r.compositeOf[m] = id
			}
		}
	}
	return r, nil
}

// Len returns the number of units.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Unit returns the unit with the given identifier.
func (r *Registry) Unit(id domain.UnitID) (domain.GeographicUnit, bool) {
	u, ok := r.units[id]
	return u, ok
}

// Has reports whether the identifier is registered.
func (r *Registry) Has(id domain.UnitID) bool {
	_, ok := r.units[id]
	return ok
}

// Units returns every unit in ascending identifier order.
func (r *Registry) Units() []domain.GeographicUnit {
	out := make([]domain.GeographicUnit, len(r.ids))
	for i, id := range r.ids {
		out[i] = r.units[id]
	}
	return out
}

// Members returns the declared constituents of a composite, metro or other unit.
func (r *Registry) Members(id domain.UnitID) []domain.UnitID {
	return slices.Clone(r.units[id].Members)
}

// CompositeOf returns the composite that aggregates id, if any.
func (r *Registry) CompositeOf(id domain.UnitID) (domain.UnitID, bool) {
	c, ok := r.compositeOf[id]
	return c, ok
}

// StateMembers returns every non-aggregate-state unit in the state block:
// regular, part-of-composite, composite and other units.
func (r *Registry) StateMembers(stateCode int) []domain.UnitID {
	return slices.Clone(r.byState[stateCode])
}

// MetroMembers returns the units summed into a metro. The narrow membership holds only
// regular counties; the wide membership adds composites that stand in for their
// part-of-composite members.
func (r *Registry) MetroMembers(metro int, wide bool) []domain.UnitID {
	var out []domain.UnitID
	for _, id := range r.byMetro[metro] {
		switch r.units[id].Kind {
		case domain.KindRegular:
			out = append(out, id)
		case domain.KindComposite:
			if wide {
				out = append(out, id)
			}
		}
	}
	return out
}

// MetroState returns the state block that most of a metro's units fall in. Used for
// territories whose metro takes its values from the state total.
func (r *Registry) MetroState(metro int) (int, bool) {
	counts := make(map[int]int)
	for _, id := range r.byMetro[metro] {
		counts[id.StateCode()]++
	}
	best, bestN := 0, 0
	for _, s := range slices.Sorted(maps.Keys(counts)) {
		if counts[s] > bestN {
			best, bestN = s, counts[s]
		}
	}
	return best, bestN > 0
}

// Metros returns every metro code with a metro unit, ascending.
func (r *Registry) Metros() []int {
	var out []int
	for _, id := range r.ids {
		if r.units[id].Kind == domain.KindMetro {
			out = append(out, id.CountyCode())
		}
	}
	return out
}

// States returns every state code with a state unit, ascending.
func (r *Registry) States() []int {
	var out []int
	for _, id := range r.ids {
		if r.units[id].Kind == domain.KindState {
			out = append(out, id.StateCode())
		}
	}
	return out
}

// StateByName resolves a state name to its code. Matching is case- and
// whitespace-insensitive.
func (r *Registry) StateByName(name string) (int, bool) {
	code, ok := r.stateByName[domain.FoldName(name)]
	return code, ok
}

// CountByKind returns the number of units per kind.
func (r *Registry) CountByKind() map[domain.UnitKind]int {
	out := make(map[domain.UnitKind]int)
	for _, u := range r.units {
		out[u.Kind]++
	}
	return out
}
