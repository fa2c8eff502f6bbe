// Package mockdata writes a small, internally consistent input set: reference tables
// and both source feeds. The rows cover the special cases of the default rule table
// (placeholders, catch-all buckets, composites, dropped entries, unresolvable ids).
package mockdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Start is the first date of every generated feed.
var Start = time.Date(2020, time.March, 30, 0, 0, 0, 0, time.UTC)

// Days is the number of dates in every generated feed.
const Days = 7

// Paths locates the generated files.
type Paths struct {
	Counties  string
	States    string
	Metros    string
	NYT       string
	JHUCases  string
	JHUDeaths string
}

type county struct {
	state, county int
	name, long    string
	metro         int // 0 when unassigned
	metroName     string
}

var states = [][]string{
	{"1", "Alabama", "AL"},
	{"2", "Alaska", "AK"},
	{"17", "Illinois", "IL"},
	{"18", "Indiana", "IN"},
	{"25", "Massachusetts", "MA"},
	{"26", "Michigan", "MI"},
	{"29", "Missouri", "MO"},
	{"36", "New York", "NY"},
	{"44", "Rhode Island", "RI"},
	{"47", "Tennessee", "TN"},
	{"49", "Utah", "UT"},
	{"50", "Vermont", "VT"},
	{"51", "Virginia", "VA"},
	{"60", "American Samoa", "AS"},
	{"66", "Guam", "GU"},
	{"69", "Northern Mariana Islands", "MP"},
	{"72", "Puerto Rico", "PR"},
	{"78", "Virgin Islands", "VI"},
}

var counties = []county{
	{1, 1, "Autauga", "Autauga County", 691, "Montgomery"},
	{2, 20, "Anchorage", "Anchorage Municipality", 156, "Anchorage"},
	{2, 60, "Bristol Bay", "Bristol Bay Borough", 156, "Anchorage"},
	{2, 105, "Hoonah-Angoon", "Hoonah-Angoon Census Area", 206, "Juneau"},
	{2, 164, "Lake and Peninsula", "Lake and Peninsula Borough", 156, "Anchorage"},
	{2, 282, "Yakutat", "Yakutat City and Borough", 206, "Juneau"},
	{25, 7, "Dukes", "Dukes County", 6, "Boston"},
	{25, 19, "Nantucket", "Nantucket County", 6, "Boston"},
	{25, 25, "Suffolk", "Suffolk County", 6, "Boston"},
	{29, 95, "Jackson", "Jackson County", 616, "Kansas City"},
	{29, 97, "Jasper", "Jasper County", 603, "Joplin"},
	{36, 5, "Bronx", "Bronx County", 1, "New York"},
	{36, 47, "Kings", "Kings County", 1, "New York"},
	{36, 61, "New York", "New York County", 1, "New York"},
	{36, 81, "Queens", "Queens County", 1, "New York"},
	{36, 85, "Richmond", "Richmond County", 1, "New York"},
	{49, 3, "Box Elder", "Box Elder County", 36, "Salt Lake City"},
	{49, 5, "Cache", "Cache County", 36, "Salt Lake City"},
	{49, 33, "Rich", "Rich County", 36, "Salt Lake City"},
	{49, 35, "Salt Lake", "Salt Lake County", 36, "Salt Lake City"},
	{66, 10, "Guam", "Guam", 0, ""},
	{69, 110, "Saipan", "Saipan Municipality", 0, ""},
	{72, 1, "Adjuntas", "Adjuntas Municipio", 500, "Puerto Rico"},
	{72, 127, "San Juan", "San Juan Municipio", 500, "Puerto Rico"},
}

// nytSeries is one place of the NYT feed. Values start at index first of the range.
type nytSeries struct {
	county, state, fips string
	first               int
	cases, deaths       []int64
}

var nyt = []nytSeries{
	{"Autauga", "Alabama", "01001", 0, []int64{1, 2, 4, 3, 5, 6, 8}, []int64{0, 0, 0, 0, 1, 1, 1}},
	{"New York City", "New York", "", 0, []int64{100, 150, 200, 260, 300, 380, 450}, []int64{1, 2, 4, 6, 9, 12, 15}},
	{"Jackson", "Missouri", "29095", 0, []int64{3, 4, 5, 6, 7, 8, 9}, nil},
	{"Kansas City", "Missouri", "", 2, []int64{2, 2, 3, 3, 4}, nil},
	{"Jasper", "Missouri", "29097", 1, []int64{1, 1, 2, 2, 3, 3}, nil},
	{"Joplin", "Missouri", "", 3, []int64{1, 1, 2, 2}, nil},
	{"Unknown", "Missouri", "", 0, []int64{1, 1, 1, 1, 1, 1, 1}, nil},
	{"Atlantis", "Missouri", "29500", 0, []int64{9, 9, 9, 9, 9, 9, 9}, nil},
	{"Unknown", "Puerto Rico", "", 2, []int64{50, 55, 60, 61, 70}, []int64{1, 1, 2, 2, 3}},
	{"San Juan", "Puerto Rico", "72127", 0, []int64{5, 6, 7, 8, 9, 10, 11}, []int64{0, 0, 1, 1, 1, 1, 1}},
	{"Bristol Bay plus Lake and Peninsula", "Alaska", "02997", 4, []int64{1, 1, 2}, nil},
	{"Dukes", "Massachusetts", "25007", 0, []int64{1, 1, 2, 2, 3, 3, 4}, nil},
	{"Nantucket", "Massachusetts", "25019", 1, []int64{1, 1, 1, 2, 2, 2}, nil},
	{"Suffolk", "Massachusetts", "25025", 0, []int64{10, 20, 30, 40, 50, 60, 70}, []int64{0, 1, 1, 2, 3, 3, 4}},
	{"Unknown", "Guam", "", 0, []int64{3, 3, 4, 5, 5, 6, 7}, nil},
	{"Unknown", "Northern Mariana Islands", "", 1, []int64{2, 2, 2, 6, 8, 8}, nil},
	{"Box Elder", "Utah", "49003", 0, []int64{1, 1, 1, 2, 2, 2, 3}, nil},
	{"Cache", "Utah", "49005", 0, []int64{0, 1, 1, 1, 1, 2, 2}, nil},
	{"Rich", "Utah", "49033", 5, []int64{1, 1}, nil},
	{"Salt Lake", "Utah", "49035", 0, []int64{20, 25, 30, 34, 40, 45, 50}, []int64{0, 0, 1, 1, 1, 2, 2}},
}

// jhuRow is one row of both JHU tables.
type jhuRow struct {
	uid, fips, admin2, province string
	population                  int
	cases, deaths               []int64
}

func flat(v int64) []int64 {
	out := make([]int64, Days)
	for i := range out {
		out[i] = v
	}
	return out
}

var jhu = []jhuRow{
	{"84001001", "1001.0", "Autauga", "Alabama", 55869, []int64{1, 2, 3, 4, 5, 6, 7}, flat(0)},
	{"84002063", "2063.0", "Chugach", "Alaska", 6751, []int64{0, 0, 0, 5, 10, 10, 10}, flat(0)},
	{"84002066", "2066.0", "Copper River", "Alaska", 2699, []int64{0, 0, 0, 0, 5, 5, 5}, flat(0)},
	{"84002105", "2105.0", "Hoonah-Angoon", "Alaska", 2148, []int64{0, 0, 1, 1, 1, 1, 1}, flat(0)},
	{"84002282", "2282.0", "Yakutat", "Alaska", 579, []int64{0, 0, 0, 0, 0, 0, 1}, flat(0)},
	{"84025025", "25025.0", "Suffolk", "Massachusetts", 803907, []int64{10, 20, 30, 40, 50, 60, 70}, []int64{0, 1, 1, 2, 3, 3, 4}},
	{"84070002", "", "Dukes and Nantucket", "Massachusetts", 28731, []int64{1, 2, 3, 3, 5, 5, 6}, flat(0)},
	{"84090025", "90025.0", "Unassigned", "Massachusetts", 0, []int64{0, 0, 5, 5, 6, 6, 6}, []int64{0, 0, 1, 1, 1, 1, 1}},
	{"84029095", "29095.0", "Jackson", "Missouri", 703011, []int64{2, 3, 4, 5, 6, 7, 8}, flat(0)},
	{"84070003", "", "Kansas City", "Missouri", 488943, []int64{1, 2, 2, 3, 3, 4, 4}, flat(0)},
	{"84080029", "80029.0", "Out of MO", "Missouri", 0, flat(1), flat(0)},
	{"84090029", "90029.0", "Unassigned", "Missouri", 0, []int64{0, 0, 1, 1, 1, 1, 1}, flat(0)},
	{"84036005", "36005.0", "Bronx", "New York", 1418207, []int64{10, 20, 30, 40, 50, 60, 70}, []int64{0, 1, 1, 2, 2, 3, 3}},
	{"84036047", "36047.0", "Kings", "New York", 2559903, []int64{20, 30, 40, 50, 60, 70, 80}, []int64{1, 1, 2, 2, 3, 3, 4}},
	{"84036061", "36061.0", "New York", "New York", 1628706, []int64{30, 40, 50, 60, 70, 80, 90}, []int64{0, 0, 1, 1, 1, 2, 2}},
	{"84036081", "36081.0", "Queens", "New York", 2253858, []int64{25, 35, 45, 55, 65, 75, 85}, []int64{0, 1, 1, 1, 2, 2, 3}},
	{"84036085", "36085.0", "Richmond", "New York", 476143, []int64{5, 6, 7, 8, 9, 10, 11}, flat(0)},
	{"84049003", "49003.0", "Box Elder", "Utah", 56046, flat(0), flat(0)},
	{"84070015", "", "Bear River", "Utah", 186818, []int64{1, 2, 2, 3, 3, 4, 5}, flat(0)},
	{"84049035", "49035.0", "Salt Lake", "Utah", 1160437, []int64{18, 24, 31, 35, 41, 44, 52}, []int64{0, 0, 1, 1, 1, 2, 2}},
	{"316", "66.0", "", "Guam", 168485, []int64{3, 3, 4, 5, 5, 6, 7}, flat(0)},
	{"84072001", "72001.0", "Adjuntas", "Puerto Rico", 17363, []int64{1, 1, 2, 2, 3, 3, 4}, []int64{0, 0, 0, 1, 1, 1, 1}},
	{"84072999", "72999.0", "Unassigned", "Puerto Rico", 0, flat(0), []int64{0, 1, 1, 2, 2, 3, 3}},
	{"84088888", "88888.0", "", "Diamond Princess", 0, flat(49), flat(0)},
	{"84070004", "", "Michigan Department of Corrections (MDOC)", "Michigan", 0, []int64{0, 0, 3, 3, 4, 4, 5}, flat(0)},
}

// Write generates every input file under dir and returns their paths.
func Write(dir string) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create mock dir: %w", err)
	}
	p := Paths{
		Counties:  filepath.Join(dir, "counties.csv"),
		States:    filepath.Join(dir, "states.csv"),
		Metros:    filepath.Join(dir, "county_dma.csv"),
		NYT:       filepath.Join(dir, "us-counties.csv"),
		JHUCases:  filepath.Join(dir, "time_series_covid19_confirmed_US.csv"),
		JHUDeaths: filepath.Join(dir, "time_series_covid19_deaths_US.csv"),
	}

	var countyRows, metroRows [][]string
	for _, c := range counties {
		countyRows = append(countyRows, []string{
			fmt.Sprintf("%02d", c.state), fmt.Sprintf("%03d", c.county), c.name, c.long,
		})
		if c.metro != 0 {
			metroRows = append(metroRows, []string{
				strconv.Itoa(c.state), strconv.Itoa(c.county), strconv.Itoa(c.metro), c.metroName,
			})
		}
	}

	files := []struct {
		path   string
		header []string
		rows   [][]string
	}{
		{p.Counties, []string{"STATEFP", "COUNTYFP", "NAME", "NAMELSAD"}, countyRows},
		{p.States, []string{"fips", "name", "abb"}, states},
		{p.Metros, []string{"STATEFP", "CNTYFP", "DMAINDEX", "shortDMA"}, metroRows},
		{p.NYT, []string{"date", "county", "state", "fips", "cases", "deaths"}, nytRows()},
		{p.JHUCases, jhuHeader(false), jhuRows(false)},
		{p.JHUDeaths, jhuHeader(true), jhuRows(true)},
	}
	for _, f := range files {
		if err := writeCSV(f.path, f.header, f.rows); err != nil {
			return Paths{}, err
		}
	}
	return p, nil
}

func nytRows() [][]string {
	var rows [][]string
	for d := range Days {
		date := Start.AddDate(0, 0, d).Format(time.DateOnly)
		for _, s := range nyt {
			i := d - s.first
			if i < 0 || i >= len(s.cases) {
				continue
			}
			deaths := ""
			if s.deaths != nil {
				deaths = strconv.FormatInt(s.deaths[i], 10)
			}
			rows = append(rows, []string{date, s.county, s.state, s.fips, strconv.FormatInt(s.cases[i], 10), deaths})
		}
	}
	return rows
}

func jhuHeader(deaths bool) []string {
	h := []string{"UID", "iso2", "iso3", "code3", "FIPS", "Admin2", "Province_State", "Country_Region", "Lat", "Long_", "Combined_Key"}
	if deaths {
		h = append(h, "Population")
	}
	for d := range Days {
		h = append(h, Start.AddDate(0, 0, d).Format("1/2/06"))
	}
	return h
}

func jhuRows(deaths bool) [][]string {
	rows := make([][]string, 0, len(jhu))
	for _, r := range jhu {
		key := r.province + ", US"
		if r.admin2 != "" {
			key = r.admin2 + ", " + key
		}
		row := []string{r.uid, "US", "USA", "840", r.fips, r.admin2, r.province, "US", "0.0", "0.0", key}
		values := r.cases
		if deaths {
			row = append(row, strconv.Itoa(r.population))
			values = r.deaths
		}
		for _, v := range values {
			row = append(row, strconv.FormatInt(v, 10))
		}
		rows = append(rows, row)
	}
	return rows
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
	return f.Close()
}
