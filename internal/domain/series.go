package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

const day = 24 * time.Hour

// DateRange is an inclusive span of calendar days in UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to midnight UTC. End before Start is an error.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("date range end %s before start %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return r, nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the range was never set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Len returns the number of days in the range.
func (r DateRange) Len() int {
	if r.IsZero() {
		return 0
	}
	return int(r.End.Sub(r.Start)/day) + 1
}

// Index returns the position of t in the range, or false when t falls outside it.
func (r DateRange) Index(t time.Time) (int, bool) {
	t = Day(t)
	if t.Before(r.Start) || t.After(r.End) {
		return 0, false
	}
	return int(t.Sub(r.Start) / day), true
}

// Date returns the i-th day of the range.
func (r DateRange) Date(i int) time.Time {
	return r.Start.AddDate(0, 0, i)
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	_, ok := r.Index(t)
	return ok
}

// Union returns the smallest range covering both.
func (r DateRange) Union(o DateRange) DateRange {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}
	out := r
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

// SeriesEntry is the cumulative series of one unit over a SeriesSet's range.
type SeriesEntry struct {
	ID     UnitID
	Region string
	Parent string
	Values []int64
}

// Clone returns a deep copy of the entry.
func (e *SeriesEntry) Clone() *SeriesEntry {
	c := *e
	c.Values = slices.Clone(e.Values)
	return &c
}

// SeriesSet holds every unit's cumulative series for one (source, metric) pair.
type SeriesSet struct {
	Source  Source
	Metric  Metric
	Range   DateRange
	entries map[UnitID]*SeriesEntry
}

// NewSeriesSet creates an empty set over the given range.
func NewSeriesSet(source Source, metric Metric, r DateRange) *SeriesSet {
	return &SeriesSet{
		Source:  source,
		Metric:  metric,
		Range:   r,
		entries: make(map[UnitID]*SeriesEntry),
	}
}

// Len returns the number of units in the set.
func (s *SeriesSet) Len() int {
	return len(s.entries)
}

// Get returns the entry for id.
func (s *SeriesSet) Get(id UnitID) (*SeriesEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Has reports whether id has an entry.
func (s *SeriesSet) Has(id UnitID) bool {
	_, ok := s.entries[id]
	return ok
}

// Put stores an entry, replacing any previous one. Its length must match the range.
func (s *SeriesSet) Put(e *SeriesEntry) error {
	if len(e.Values) != s.Range.Len() {
		return fmt.Errorf("series %s has %d values, range has %d days", e.ID, len(e.Values), s.Range.Len())
	}
	s.entries[e.ID] = e
	return nil
}

// Delete removes the entry for id, if present.
func (s *SeriesSet) Delete(id UnitID) {
	delete(s.entries, id)
}

// Relabel moves an entry to a new identifier. Moving onto an existing id is an error.
func (s *SeriesSet) Relabel(from, to UnitID) error {
	e, ok := s.entries[from]
	if !ok {
		return fmt.Errorf("relabel %s: no such series", from)
	}
	if _, taken := s.entries[to]; taken {
		return fmt.Errorf("relabel %s to %s: %w", from, to, ErrCompositeExists)
	}
	delete(s.entries, from)
	e.ID = to
	s.entries[to] = e
	return nil
}

// IDs returns every identifier in ascending order.
func (s *SeriesSet) IDs() []UnitID {
	return slices.Sorted(maps.Keys(s.entries))
}

// Entries returns every entry in ascending identifier order.
func (s *SeriesSet) Entries() []*SeriesEntry {
	ids := s.IDs()
	out := make([]*SeriesEntry, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id]
	}
	return out
}

// DailyRow is one unit-date row of a long daily table.
type DailyRow struct {
	Source     Source
	Metric     Metric
	Date       time.Time
	ID         UnitID
	Cumulative int64
	Daily      int64
	HasDaily   bool // false on the first date of the range
}
