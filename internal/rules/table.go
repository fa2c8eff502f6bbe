// Package rules defines the declarative correction and catch-all policy tables that
// drive identifier remapping and composite construction.
package rules

import (
	"fmt"
	"time"
)

// Toggles a rule can be gated on.
const (
	OptionDropJHUCruise  = "drop_jhu_cruise"
	OptionDropJHUPrisons = "drop_jhu_prisons"
)

// KnownOptions lists every toggle name a rule may reference.
var KnownOptions = []string{OptionDropJHUCruise, OptionDropJHUPrisons}

// Table is the full set of remapping and aggregation tables.
type Table struct {
	Corrections  []Rule           `yaml:"corrections"`
	CatchAll     CatchAll         `yaml:"catch_all"`
	Cleanup      []Rule           `yaml:"cleanup"`
	Placeholders []Placeholder    `yaml:"placeholders"`
	Composites   map[string][]int `yaml:"composites"`
	Metros       Metros           `yaml:"metros"`
}

// Match is a rule predicate. Empty fields match anything. When both IDs and IDBlocks
// are given an observation matches if either does. Region patterns ending in "*"
// match by prefix.
type Match struct {
	Source    string   `yaml:"source,omitempty"`
	Metric    string   `yaml:"metric,omitempty"`
	Region    string   `yaml:"region,omitempty"`
	RegionNot []string `yaml:"region_not,omitempty"`
	Parent    string   `yaml:"parent,omitempty"`
	IDs       []int    `yaml:"ids,omitempty"`
	IDBlocks  []int    `yaml:"id_blocks,omitempty"`
	From      string   `yaml:"from,omitempty"`
	To        string   `yaml:"to,omitempty"`
	Option    string   `yaml:"option,omitempty"`
}

// Set rewrites the fields of a matching observation. Zero fields are left alone.
type Set struct {
	ID     int    `yaml:"id,omitempty"`
	Region string `yaml:"region,omitempty"`
	Parent string `yaml:"parent,omitempty"`
}

// Rule pairs a predicate with exactly one action.
type Rule struct {
	Name  string `yaml:"name"`
	Match Match  `yaml:"match"`
	Set   *Set   `yaml:"set,omitempty"`
	Drop  bool   `yaml:"drop,omitempty"`
}

// Treatment decides what happens to a catch-all bucket row.
type Treatment string

const (
	TreatState Treatment = "state" // fold into the parent's "All" unit
	TreatUnit  Treatment = "unit"  // move to a named unit
	TreatDrop  Treatment = "drop"
)

// CatchAll lists each source's bucket names and the per-state policies for them.
// Bucket rows no policy covers are dropped.
type CatchAll struct {
	Buckets  map[string][]string `yaml:"buckets"`
	Policies []Policy            `yaml:"policies"`
}

// Policy is a dated treatment for one state's catch-all bucket.
type Policy struct {
	Name       string    `yaml:"name"`
	Source     string    `yaml:"source"`
	Metric     string    `yaml:"metric,omitempty"`
	Parent     string    `yaml:"parent"`
	Region     string    `yaml:"region"`
	From       string    `yaml:"from,omitempty"`
	To         string    `yaml:"to,omitempty"`
	Treatment  Treatment `yaml:"treatment"`
	Unit       int       `yaml:"unit,omitempty"`
	UnitRegion string    `yaml:"unit_region,omitempty"`
}

// Placeholder is a temporary identifier for a place reported without one. Its series
// is folded into Into during aggregation.
type Placeholder struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Into int    `yaml:"into"`
}

// Metros holds the per-metro exceptions to plain county summation.
type Metros struct {
	WideMembership []int            `yaml:"wide_membership"`
	FromState      []FromState      `yaml:"from_state"`
	Exclude        map[string][]int `yaml:"exclude"`
}

// FromState lists metros whose value is taken from their state total for one metric.
type FromState struct {
	Metric string `yaml:"metric"`
	Source string `yaml:"source,omitempty"`
	Metros []int  `yaml:"metros"`
}

// ParseDay parses an inclusive YYYY-MM-DD bound. The empty string is an open bound.
func ParseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Window returns the parsed date bounds of a predicate.
func (m Match) Window() (from, to time.Time, err error) {
	if from, err = ParseDay(m.From); err != nil {
		return
	}
	to, err = ParseDay(m.To)
	return
}

// Window returns the parsed date bounds of a policy.
func (p Policy) Window() (from, to time.Time, err error) {
	if from, err = ParseDay(p.From); err != nil {
		return
	}
	to, err = ParseDay(p.To)
	return
}

// InWindow reports whether t falls between the inclusive bounds; zero bounds are open.
func InWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
