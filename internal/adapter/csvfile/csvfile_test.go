package csvfile_test

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReferenceReader(t *testing.T) {
	dir := t.TempDir()
	r := csvfile.ReferenceReader{
		CountyPath: writeFile(t, dir, "counties.csv", "\ufeffSTATEFP,COUNTYFP,NAME,NAMELSAD,ALAND\n29,095,Jackson,Jackson County,1\n02,063,Chugach,Chugach Census Area,2\n"),
		StatePath:  writeFile(t, dir, "states.csv", "fips,name,abb\n29,Missouri,MO\n2,Alaska,AK\n"),
		MetroPath:  writeFile(t, dir, "dma.csv", "STATEFP,CNTYFP,DMAINDEX,shortDMA\n29,95,616,Kansas City\n"),
	}

	ref, err := r.LoadReference(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []registry.CountyRecord{
		{StateCode: 29, CountyCode: 95, Name: "Jackson", LongName: "Jackson County"},
		{StateCode: 2, CountyCode: 63, Name: "Chugach", LongName: "Chugach Census Area"},
	}, ref.Counties)
	assert.Equal(t, []registry.StateRecord{{Code: 29, Name: "Missouri", Abbr: "MO"}, {Code: 2, Name: "Alaska", Abbr: "AK"}}, ref.States)
	assert.Equal(t, []registry.MetroRecord{{StateCode: 29, CountyCode: 95, Metro: 616, MetroName: "Kansas City"}}, ref.Metros)
}

func TestReferenceReader_BlankMetroRows(t *testing.T) {
	dir := t.TempDir()
	r := csvfile.ReferenceReader{
		CountyPath: writeFile(t, dir, "counties.csv", "STATEFP,COUNTYFP,NAME,NAMELSAD\n29,095,Jackson,Jackson County\n29,097,Jasper,Jasper County\n29,099,Jefferson,Jefferson County\n"),
		StatePath:  writeFile(t, dir, "states.csv", "fips,name,abb\n29,Missouri,MO\n"),
		MetroPath: writeFile(t, dir, "dma.csv", "STATEFP,CNTYFP,DMAINDEX,shortDMA\n"+
			"29,95,616,Kansas City\n29,97,,\n29,99,-9223372036854775808,\n"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ref, err := r.LoadReference(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []registry.MetroRecord{{StateCode: 29, CountyCode: 95, Metro: 616, MetroName: "Kansas City"}}, ref.Metros)

	reg, report, err := registry.Build(ref, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, []domain.UnitID{29097, 29099}, report.MissingMetro)

	jasper, ok := reg.Unit(29097)
	require.True(t, ok)
	assert.Equal(t, domain.NoMetro, jasper.Metro)
	jackson, ok := reg.Unit(29095)
	require.True(t, ok)
	assert.Equal(t, 616, jackson.Metro)
}

func TestReferenceReader_Errors(t *testing.T) {
	dir := t.TempDir()
	counties := writeFile(t, dir, "counties.csv", "STATEFP,COUNTYFP,NAME,NAMELSAD\n29,095,Jackson,Jackson County\n")
	states := writeFile(t, dir, "states.csv", "fips,name\n29,Missouri\n")

	t.Run("missing file", func(t *testing.T) {
		r := csvfile.ReferenceReader{CountyPath: filepath.Join(dir, "nope.csv")}
		_, err := r.LoadReference(context.Background())
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("missing column", func(t *testing.T) {
		r := csvfile.ReferenceReader{CountyPath: counties, StatePath: states}
		_, err := r.LoadReference(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing column "abb"`)
	})
}

func TestReadNYT(t *testing.T) {
	path := writeFile(t, t.TempDir(), "us-counties.csv", `date,county,state,fips,cases,deaths
2020-04-01,Jackson,Missouri,29095,12,1
2020-04-01,Unknown,Puerto Rico,,50,
2020-04-02,Kansas City,Missouri,,30,2
`)

	obs, err := csvfile.ReadNYT(path)
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, domain.RawObservation{
		Source: domain.SourceNYT, RawID: 29095, HasID: true, Region: "Jackson", Parent: "Missouri",
		Date: date("2020-04-01"), Cases: 12, Deaths: 1,
	}, obs[0])
	assert.False(t, obs[1].HasID)
	assert.Equal(t, int64(50), obs[1].Cases)
	assert.Zero(t, obs[1].Deaths)
	assert.Equal(t, "Kansas City", obs[2].Region)
}

func TestFeedReader_JHU(t *testing.T) {
	dir := t.TempDir()
	header := "UID,iso2,iso3,code3,FIPS,Admin2,Province_State,Country_Region,Lat,Long_,Combined_Key,Population,1/22/20,1/23/20\n"
	r := &csvfile.FeedReader{
		JHUCasesPath: writeFile(t, dir, "cases.csv", header+
			`84001001,US,USA,840,1001.0,Autauga,Alabama,US,32.5,-86.6,"Autauga, Alabama, US",55869,0,2`+"\n"+
			`84088888,US,USA,840,,,Diamond Princess,US,0,0,"Diamond Princess, US",0,49,49`+"\n"),
		JHUDeathsPath: writeFile(t, dir, "deaths.csv", header+
			`84001001,US,USA,840,1001.0,Autauga,Alabama,US,32.5,-86.6,"Autauga, Alabama, US",55869,0,1`+"\n"),
	}

	cases, err := r.LoadFeed(context.Background(), domain.SourceJHU, domain.MetricCases)
	require.NoError(t, err)
	require.Len(t, cases, 4, "one observation per row and date column")
	assert.Equal(t, domain.RawObservation{
		Source: domain.SourceJHU, RawID: 1001, HasID: true, Region: "Autauga", Parent: "Alabama",
		Date: date("2020-01-23"), Cases: 2,
	}, cases[1])
	assert.False(t, cases[2].HasID)
	assert.Equal(t, "Diamond Princess", cases[2].Parent)

	deaths, err := r.LoadFeed(context.Background(), domain.SourceJHU, domain.MetricDeaths)
	require.NoError(t, err)
	require.Len(t, deaths, 2)
	assert.Equal(t, int64(1), deaths[1].Deaths)
	assert.Zero(t, deaths[1].Cases)
}

func TestRegistryFile_RoundTrip(t *testing.T) {
	units := []domain.GeographicUnit{
		{ID: 2000, Kind: domain.KindState, StateCode: 2, Name: "All", LongName: "Alaska --- All (not a real FIPS)", State: "Alaska", StateAbbr: "AK", Metro: domain.NoMetro},
		{ID: 2063, Kind: domain.KindPartOfComposite, StateCode: 2, CountyCode: 63, Name: "Chugach", LongName: "Chugach Census Area", State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage"},
		{ID: 2066, Kind: domain.KindPartOfComposite, StateCode: 2, CountyCode: 66, Name: "Copper River", LongName: "Copper River Census Area", State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage"},
		{ID: 2903, Kind: domain.KindComposite, StateCode: 2, CountyCode: 903, Name: "Chugach plus Copper River", LongName: "Chugach plus Copper River", State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage", Members: []domain.UnitID{2063, 2066}},
		{ID: 99156, Kind: domain.KindMetro, StateCode: 99, CountyCode: 156, Name: "Anchorage", LongName: "Anchorage --- DMA (not a real FIPS)", Metro: 156, MetroName: "Anchorage"},
	}
	reg, err := registry.New(units)
	require.NoError(t, err)

	store := csvfile.RegistryFile{Path: filepath.Join(t.TempDir(), "out", "UScounty_fips_dma.csv")}
	require.NoError(t, store.SaveRegistry(context.Background(), reg))

	got, err := store.LoadRegistry(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(reg.Units(), got.Units(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("registry round trip mismatch (-want +got):\n%s", diff)
	}
	comp, ok := got.CompositeOf(2066)
	require.True(t, ok)
	assert.Equal(t, domain.UnitID(2903), comp)
}

func TestRegistryFile_Missing(t *testing.T) {
	store := csvfile.RegistryFile{Path: filepath.Join(t.TempDir(), "missing.csv")}
	_, err := store.LoadRegistry(context.Background())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOutputs_CleanedRoundTrip(t *testing.T) {
	out := csvfile.Outputs{Dir: t.TempDir()}
	rng, err := domain.NewDateRange(date("2020-12-30"), date("2021-01-02"))
	require.NoError(t, err)

	set := domain.NewSeriesSet(domain.SourceJHU, domain.MetricCases, rng)
	require.NoError(t, set.Put(&domain.SeriesEntry{ID: 2903, Region: "Chugach plus Copper River", Parent: "Alaska", Values: []int64{1, 3, 15, 15}}))
	require.NoError(t, set.Put(&domain.SeriesEntry{ID: 72000, Region: "All", Parent: "Puerto Rico", Values: []int64{50, 60, 60, 61}}))

	require.NoError(t, out.SaveCleaned(context.Background(), set))
	assert.FileExists(t, filepath.Join(out.Dir, "jhu_c_cleaned.csv"))

	data, err := os.ReadFile(out.CleanedPath(domain.SourceJHU, domain.MetricCases))
	require.NoError(t, err)
	assert.Contains(t, string(data), "fips,county,state,12/30/20,12/31/20,1/1/21,1/2/21\n")

	got, err := out.LoadCleaned(context.Background(), domain.SourceJHU, domain.MetricCases)
	require.NoError(t, err)
	assert.Equal(t, rng, got.Range)
	if diff := cmp.Diff(set.Entries(), got.Entries()); diff != "" {
		t.Errorf("cleaned round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputs_DailyRoundTrip(t *testing.T) {
	out := csvfile.Outputs{Dir: t.TempDir()}
	rows := []domain.DailyRow{
		{Source: domain.SourceNYT, Metric: domain.MetricDeaths, Date: date("2020-05-01"), ID: 1001, Cumulative: 10},
		{Source: domain.SourceNYT, Metric: domain.MetricDeaths, Date: date("2020-05-02"), ID: 1001, Cumulative: 8, Daily: -2, HasDaily: true},
	}
	require.NoError(t, out.WriteDaily(context.Background(), domain.SourceNYT, domain.MetricDeaths, rows))

	data, err := os.ReadFile(out.DailyPath(domain.SourceNYT, domain.MetricDeaths))
	require.NoError(t, err)
	assert.Equal(t, "date,fips,cum,daily\n2020-05-01,1001,10,\n2020-05-02,1001,8,-2\n", string(data))

	got, err := out.ReadDaily(domain.SourceNYT, domain.MetricDeaths)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestOutputs_WriteSummary(t *testing.T) {
	out := csvfile.Outputs{Dir: filepath.Join(t.TempDir(), "nested")}
	require.NoError(t, out.WriteSummary(context.Background(), map[string]int{"units": 3}))

	data, err := os.ReadFile(out.SummaryPath())
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3, got["units"])
}
