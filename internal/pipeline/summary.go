package pipeline

import (
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// Registry origins recorded in the run summary.
const (
	OriginBuilt     = "built"
	OriginPersisted = "persisted"
	OriginFallback  = "persisted-fallback"
)

// RunSummary is the machine-readable record of one run.
type RunSummary struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	RebuildRegistry bool            `json:"rebuild_registry"`
	ReprocessFeeds  bool            `json:"reprocess_feeds"`
	Registry        RegistrySummary `json:"registry"`
	RangeStart      string          `json:"range_start,omitempty"`
	RangeEnd        string          `json:"range_end,omitempty"`
	Series          []SeriesSummary `json:"series"`
}

// RegistrySummary counts registry units by kind.
type RegistrySummary struct {
	Origin string         `json:"origin"`
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
}

// SeriesSummary describes one source and metric.
type SeriesSummary struct {
	Source             string         `json:"source"`
	Metric             string         `json:"metric"`
	Input              int            `json:"input,omitempty"`
	Kept               int            `json:"kept,omitempty"`
	DroppedByRule      map[string]int `json:"dropped_by_rule,omitempty"`
	Unresolved         int            `json:"unresolved,omitempty"`
	PlaceholdersFolded int            `json:"placeholders_folded,omitempty"`
	StateTotals        int            `json:"state_totals,omitempty"`
	Composites         int            `json:"composites,omitempty"`
	Metros             int            `json:"metros,omitempty"`
	Units              int            `json:"units"`
	DailyRows          int            `json:"daily_rows"`
	NegativeIncrements int            `json:"negative_increments"`
}

func (s *RunSummary) setRange(r domain.DateRange) {
	if r.IsZero() {
		return
	}
	s.RangeStart = r.Start.Format(time.DateOnly)
	s.RangeEnd = r.End.Format(time.DateOnly)
}
