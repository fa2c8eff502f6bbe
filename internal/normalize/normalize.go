// Package normalize turns remapped observations into gap-free cumulative series and
// derives daily increments from them.
package normalize

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// BuildSeries groups observations by unit onto rng. Duplicate (unit, date) values are
// summed, interior gaps are forward-filled and days before a unit's first report are
// zero. Observations outside rng are ignored. Labels come from each unit's latest
// observation.
func BuildSeries(source domain.Source, metric domain.Metric, obs []domain.RemappedObservation, rng domain.DateRange) (*domain.SeriesSet, error) {
	type acc struct {
		reported map[int]int64
		latest   domain.RemappedObservation
	}
	byID := make(map[domain.UnitID]*acc)

	for _, o := range obs {
		i, ok := rng.Index(o.Date)
		if !ok {
			continue
		}
		a := byID[o.ID]
		if a == nil {
			a = &acc{reported: make(map[int]int64), latest: o}
			byID[o.ID] = a
		}
		a.reported[i] += o.Value(metric)
		if !o.Date.Before(a.latest.Date) {
			a.latest = o
		}
	}

	set := domain.NewSeriesSet(source, metric, rng)
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		a := byID[id]
		values := make([]int64, rng.Len())
		var last int64
		for i := range values {
			if v, ok := a.reported[i]; ok {
				last = v
			}
			values[i] = last
		}
		entry := &domain.SeriesEntry{ID: id, Region: a.latest.Region, Parent: a.latest.Parent, Values: values}
		if err := set.Put(entry); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Report summarizes one Daily call.
type Report struct {
	Rows     int
	Negative []domain.NegativeIncrement
}

// Daily expands a series set into one row per (unit, date), ordered by unit then date.
// The first date of the range has no daily value. Negative increments are kept as
// reported, logged, and returned in the report.
func Daily(set *domain.SeriesSet, logger *slog.Logger) ([]domain.DailyRow, Report) {
	var report Report
	rows := make([]domain.DailyRow, 0, set.Len()*set.Range.Len())

	for _, e := range set.Entries() {
		for i, cum := range e.Values {
			row := domain.DailyRow{
				Source:     set.Source,
				Metric:     set.Metric,
				Date:       set.Range.Date(i),
				ID:         e.ID,
				Cumulative: cum,
			}
			if i > 0 {
				row.Daily = cum - e.Values[i-1]
				row.HasDaily = true
			}
			if row.Daily < 0 {
				neg := domain.NegativeIncrement{
					Source:     set.Source,
					Metric:     set.Metric,
					ID:         e.ID,
					Date:       row.Date,
					Cumulative: cum,
					Daily:      row.Daily,
				}
				report.Negative = append(report.Negative, neg)
				logger.Warn("negative daily increment",
					"source", string(set.Source),
					"metric", string(set.Metric),
					"fips", e.ID.String(),
					"date", row.Date.Format(time.DateOnly),
					"daily", row.Daily,
				)
			}
			rows = append(rows, row)
		}
	}
	report.Rows = len(rows)
	return rows, report
}

// Reconstruct rebuilds cumulative values from daily rows: each unit's first row seeds
// the running total and later rows add their daily value. Rows must be ordered by
// unit then date, as Daily returns them.
func Reconstruct(rows []domain.DailyRow) map[domain.UnitID][]int64 {
	out := make(map[domain.UnitID][]int64)
	for _, r := range rows {
		vals, ok := out[r.ID]
		if !ok || !r.HasDaily {
			out[r.ID] = append(vals, r.Cumulative)
			continue
		}
		out[r.ID] = append(vals, vals[len(vals)-1]+r.Daily)
	}
	return out
}

// ErrNoObservations is returned by ObservedRange when every feed is empty.
var ErrNoObservations = errors.New("no observations")

// ObservedRange returns the smallest range covering every observation of every feed.
func ObservedRange(feeds ...[]domain.RawObservation) (domain.DateRange, error) {
	var rng domain.DateRange
	for _, feed := range feeds {
		for _, o := range feed {
			d := domain.Day(o.Date)
			rng = rng.Union(domain.DateRange{Start: d, End: d})
		}
	}
	if rng.IsZero() {
		return rng, ErrNoObservations
	}
	return rng, nil
}
