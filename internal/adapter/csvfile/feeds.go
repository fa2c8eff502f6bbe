package csvfile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// FeedReader reads the NYT long-format feed and the JHU wide-format feeds.
// The NYT file carries both metrics and is parsed once.
type FeedReader struct {
	NYTPath       string
	JHUCasesPath  string
	JHUDeathsPath string

	nyt []domain.RawObservation
}

// LoadFeed returns the raw observations of one source and metric.
func (r *FeedReader) LoadFeed(ctx context.Context, source domain.Source, metric domain.Metric) ([]domain.RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch source {
	case domain.SourceNYT:
		if r.nyt == nil {
			obs, err := ReadNYT(r.NYTPath)
			if err != nil {
				return nil, err
			}
			r.nyt = obs
		}
		return r.nyt, nil
	case domain.SourceJHU:
		path := r.JHUCasesPath
		if metric == domain.MetricDeaths {
			path = r.JHUDeathsPath
		}
		return ReadJHU(path, metric)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

// ReadNYT parses the NYT county feed (date, county, state, fips, cases, deaths).
// An empty fips cell yields an observation without an identifier.
func ReadNYT(path string) ([]domain.RawObservation, error) {
	t, err := readTable(path, "date", "county", "state", "fips", "cases", "deaths")
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawObservation, 0, len(t.rows))
	for i, row := range t.rows {
		o := domain.RawObservation{
			Source: domain.SourceNYT,
			Region: t.get(row, "county"),
			Parent: t.get(row, "state"),
		}
		if o.Date, err = time.Parse(time.DateOnly, t.get(row, "date")); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		if s := t.get(row, "fips"); s != "" {
			id, err := parseInt(s)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: fips: %w", path, i+2, err)
			}
			o.RawID, o.HasID = domain.UnitID(id), true
		}
		if o.Cases, err = parseCount(t.get(row, "cases")); err != nil {
			return nil, fmt.Errorf("%s line %d: cases: %w", path, i+2, err)
		}
		if o.Deaths, err = parseCount(t.get(row, "deaths")); err != nil {
			return nil, fmt.Errorf("%s line %d: deaths: %w", path, i+2, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// ReadJHU parses one JHU time-series table. Every m/d/yy column becomes one
// observation per row carrying the value of metric.
func ReadJHU(path string, metric domain.Metric) ([]domain.RawObservation, error) {
	t, err := readTable(path, "FIPS", "Admin2", "Province_State")
	if err != nil {
		return nil, err
	}
	cols, dates := t.dateColumns()
	if len(cols) == 0 {
		return nil, fmt.Errorf("read %s: no date columns", path)
	}

	out := make([]domain.RawObservation, 0, len(t.rows)*len(cols))
	for i, row := range t.rows {
		base := domain.RawObservation{
			Source: domain.SourceJHU,
			Region: t.get(row, "Admin2"),
			Parent: t.get(row, "Province_State"),
		}
		if s := t.get(row, "FIPS"); s != "" {
			id, err := parseInt(s)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: FIPS: %w", path, i+2, err)
			}
			base.RawID, base.HasID = domain.UnitID(id), true
		}
		for j, c := range cols {
			var cell string
			if c < len(row) {
				cell = strings.TrimSpace(row[c])
			}
			v, err := parseCount(cell)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %s: %w", path, i+2, t.header[c], err)
			}
			o := base
			o.Date = dates[j]
			if metric == domain.MetricDeaths {
				o.Deaths = v
			} else {
				o.Cases = v
			}
			out = append(out, o)
		}
	}
	return out, nil
}
