// Package csvfile reads the reference tables and source feeds, and reads and writes
// every curated artifact as CSV or JSON files.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// jhuDateLayout is the m/d/yy column header format of the wide tables.
const jhuDateLayout = "1/2/06"

type table struct {
	path   string
	header []string
	index  map[string]int
	rows   [][]string
}

func readTable(path string, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read %s: empty file", path)
	}

	t := &table{path: path, header: records[0], index: make(map[string]int), rows: records[1:]}
	if len(t.header) > 0 {
		t.header[0] = strings.TrimPrefix(t.header[0], "\ufeff")
	}
	for i, h := range t.header {
		t.index[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("read %s: missing column %q", path, col)
		}
	}
	return t, nil
}

func (t *table) get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// dateColumns returns the header positions that parse as m/d/yy dates.
func (t *table) dateColumns() ([]int, []time.Time) {
	var cols []int
	var dates []time.Time
	for i, h := range t.header {
		d, err := time.Parse(jhuDateLayout, strings.TrimSpace(h))
		if err != nil {
			continue
		}
		cols = append(cols, i)
		dates = append(dates, d)
	}
	return cols, dates
}

// parseInt accepts integer text and float text with no fractional part ("1001.0").
func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int64(f), nil
}

// parseCount treats an empty cell as zero.
func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return parseInt(s)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
