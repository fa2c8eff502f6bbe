package domain

import "fmt"

// UnitID is a canonical geographic identifier (state code × 1000 + county code).
type UnitID int

const (
	// MetroStateCode is the reserved state block holding every metro unit.
	MetroStateCode = 99

	// NoMetro marks a unit with no metro assignment.
	NoMetro = -1
)

// StateUnitID returns the "All" identifier for a state, e.g. 72 -> 72000.
func StateUnitID(stateCode int) UnitID {
	return UnitID(stateCode * 1000)
}

// MetroUnitID returns the identifier of a metro unit, e.g. DMA 156 -> 99156.
func MetroUnitID(metro int) UnitID {
	return UnitID(MetroStateCode*1000 + metro)
}

// StateCode returns the state block of the identifier.
func (id UnitID) StateCode() int {
	return int(id) / 1000
}

// CountyCode returns the county slot within the state block.
func (id UnitID) CountyCode() int {
	return int(id) % 1000
}

// IsStateTotal reports whether the identifier sits in a state's reserved 000 slot.
func (id UnitID) IsStateTotal() bool {
	return id.CountyCode() == 0 && id.StateCode() != MetroStateCode
}

// String renders the identifier zero-padded to five digits.
func (id UnitID) String() string {
	return fmt.Sprintf("%05d", int(id))
}

// UnitKind classifies a geographic unit.
type UnitKind string

const (
	KindRegular         UnitKind = "regular"
	KindPartOfComposite UnitKind = "part-of-composite"
	KindComposite       UnitKind = "composite"
	KindMetro           UnitKind = "metro"
	KindState           UnitKind = "state"
	KindOther           UnitKind = "other"
)

// ParseUnitKind validates a persisted kind label.
func ParseUnitKind(s string) (UnitKind, error) {
	switch k := UnitKind(s); k {
	case KindRegular, KindPartOfComposite, KindComposite, KindMetro, KindState, KindOther:
		return k, nil
	default:
		return "", fmt.Errorf("unknown unit kind %q", s)
	}
}

// Aggregates reports whether units of this kind are sums of other units.
func (k UnitKind) Aggregates() bool {
	return k == KindComposite || k == KindMetro || k == KindState
}

// GeographicUnit is one entry of the canonical registry.
type GeographicUnit struct {
	ID         UnitID
	Kind       UnitKind
	StateCode  int
	CountyCode int
	Name       string // "Jackson", "All", "New York City"
	LongName   string // "Jackson County"
	State      string // "Missouri"
	StateAbbr  string // "MO"
	Metro      int    // DMA code or NoMetro
	MetroName  string
	Members    []UnitID // composite/metro/other constituents
}

// HasMetro reports whether the unit is assigned to a metro grouping.
func (u GeographicUnit) HasMetro() bool {
	return u.Metro != NoMetro
}
