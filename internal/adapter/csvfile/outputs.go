package csvfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// Outputs writes and reads the curated artifacts under one directory:
// <source>_<c|d>_cleaned.csv wide tables, <source>_<c|d>_daily.csv long tables, and
// run_summary.json.
type Outputs struct {
	Dir string
}

// CleanedPath returns the wide table path for a source and metric.
func (o Outputs) CleanedPath(source domain.Source, metric domain.Metric) string {
	return filepath.Join(o.Dir, fmt.Sprintf("%s_%s_cleaned.csv", source, metric.Short()))
}

// DailyPath returns the long table path for a source and metric.
func (o Outputs) DailyPath(source domain.Source, metric domain.Metric) string {
	return filepath.Join(o.Dir, fmt.Sprintf("%s_%s_daily.csv", source, metric.Short()))
}

// SummaryPath returns the run summary path.
func (o Outputs) SummaryPath() string {
	return filepath.Join(o.Dir, "run_summary.json")
}

// SaveCleaned writes a series set as a wide table: fips, county, state, then one
// m/d/yy column per date.
func (o Outputs) SaveCleaned(ctx context.Context, set *domain.SeriesSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("save cleaned: %w", err)
	}
	n := set.Range.Len()
	header := make([]string, 0, n+3)
	header = append(header, "fips", "county", "state")
	for i := range n {
		header = append(header, set.Range.Date(i).Format(jhuDateLayout))
	}

	entries := set.Entries()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := make([]string, 0, n+3)
		row = append(row, strconv.Itoa(int(e.ID)), e.Region, e.Parent)
		for _, v := range e.Values {
			row = append(row, strconv.FormatInt(v, 10))
		}
		rows = append(rows, row)
	}
	return writeCSV(o.CleanedPath(set.Source, set.Metric), header, rows)
}

// LoadCleaned reads a wide table written by SaveCleaned back into a series set.
func (o Outputs) LoadCleaned(ctx context.Context, source domain.Source, metric domain.Metric) (*domain.SeriesSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := o.CleanedPath(source, metric)
	t, err := readTable(path, "fips", "county", "state")
	if err != nil {
		return nil, err
	}
	cols, dates := t.dateColumns()
	if len(cols) == 0 {
		return nil, fmt.Errorf("read %s: no date columns", path)
	}
	rng, err := domain.NewDateRange(dates[0], dates[len(dates)-1])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if rng.Len() != len(cols) {
		return nil, fmt.Errorf("read %s: date columns are not contiguous", path)
	}

	set := domain.NewSeriesSet(source, metric, rng)
	for i, row := range t.rows {
		id, err := parseInt(t.get(row, "fips"))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		e := &domain.SeriesEntry{
			ID:     domain.UnitID(id),
			Region: t.get(row, "county"),
			Parent: t.get(row, "state"),
			Values: make([]int64, len(cols)),
		}
		for j, c := range cols {
			var cell string
			if c < len(row) {
				cell = row[c]
			}
			if e.Values[j], err = parseCount(cell); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
			}
		}
		if err := set.Put(e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
	}
	return set, nil
}

// WriteDaily writes the long table (date, fips, cum, daily). The daily cell is empty
// on the first date of the range.
func (o Outputs) WriteDaily(ctx context.Context, source domain.Source, metric domain.Metric, rows []domain.DailyRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("write daily: %w", err)
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		daily := ""
		if r.HasDaily {
			daily = strconv.FormatInt(r.Daily, 10)
		}
		out[i] = []string{
			r.Date.Format(time.DateOnly),
			strconv.Itoa(int(r.ID)),
			strconv.FormatInt(r.Cumulative, 10),
			daily,
		}
	}
	return writeCSV(o.DailyPath(source, metric), []string{"date", "fips", "cum", "daily"}, out)
}

// ReadDaily reads a long table written by WriteDaily.
func (o Outputs) ReadDaily(source domain.Source, metric domain.Metric) ([]domain.DailyRow, error) {
	path := o.DailyPath(source, metric)
	t, err := readTable(path, "date", "fips", "cum", "daily")
	if err != nil {
		return nil, err
	}
	rows := make([]domain.DailyRow, 0, len(t.rows))
	for i, row := range t.rows {
		r := domain.DailyRow{Source: source, Metric: metric}
		if r.Date, err = time.Parse(time.DateOnly, t.get(row, "date")); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		id, err := parseInt(t.get(row, "fips"))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		r.ID = domain.UnitID(id)
		if r.Cumulative, err = parseInt(t.get(row, "cum")); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		if s := t.get(row, "daily"); s != "" {
			if r.Daily, err = parseInt(s); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
			}
			r.HasDaily = true
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// WriteSummary writes v as indented JSON to run_summary.json.
func (o Outputs) WriteSummary(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(o.SummaryPath(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
