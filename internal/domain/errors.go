package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Row-level errors are recovered by the component that detects them;
// configuration errors abort the stage.
var (
	// ErrUnresolvedIdentifier marks a record matching no rule and no registry unit.
	ErrUnresolvedIdentifier = errors.New("unresolved identifier")

	// ErrMissingReferenceEntry marks a base unit absent from an auxiliary reference table.
	ErrMissingReferenceEntry = errors.New("missing reference entry")

	// ErrNonMonotonicSeries marks a negative daily increment.
	ErrNonMonotonicSeries = errors.New("non-monotonic series")

	// ErrAmbiguousCompositeMembership marks a unit that would be counted by two composites.
	ErrAmbiguousCompositeMembership = errors.New("ambiguous composite membership")

	// ErrCompositeExists marks an additive composite whose target id is already present.
	ErrCompositeExists = errors.New("composite already exists")

	// ErrInvalidRule marks a malformed entry in a rule or policy table.
	ErrInvalidRule = errors.New("invalid rule")
)

// UnresolvedError describes a dropped record.
type UnresolvedError struct {
	Source Source
	Region string
	Parent string
	RawID  UnitID
	HasID  bool
}

func (e *UnresolvedError) Error() string {
	if e.HasID {
		return fmt.Sprintf("%s: %s, %s (fips %s) not in registry", e.Source, e.Region, e.Parent, e.RawID)
	}
	return fmt.Sprintf("%s: %s, %s has no identifier", e.Source, e.Region, e.Parent)
}

// Is implements errors.Is support.
func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolvedIdentifier
}

// MembershipError describes a unit claimed twice.
type MembershipError struct {
	Unit   UnitID
	First  UnitID
	Second UnitID
}

func (e *MembershipError) Error() string {
	return fmt.Sprintf("unit %s claimed by both %s and %s", e.Unit, e.First, e.Second)
}

// Is implements errors.Is support.
func (e *MembershipError) Is(target error) bool {
	return target == ErrAmbiguousCompositeMembership
}

// NegativeIncrement describes one non-monotonic step in a cumulative series.
type NegativeIncrement struct {
	Source     Source
	Metric     Metric
	ID         UnitID
	Date       time.Time
	Cumulative int64
	Daily      int64
}

func (n NegativeIncrement) Error() string {
	return fmt.Sprintf("%s %s %s on %s: cumulative %d, daily %d",
		n.Source, n.Metric, n.ID, n.Date.Format(time.DateOnly), n.Cumulative, n.Daily)
}

// Is implements errors.Is support.
func (n NegativeIncrement) Is(target error) bool {
	return target == ErrNonMonotonicSeries
}
