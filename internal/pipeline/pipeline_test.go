package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/mockdata"
	"github.com/couchcryptid/covid-data-etl/internal/normalize"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/couchcryptid/covid-data-etl/internal/pipeline"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/couchcryptid/covid-data-etl/internal/remap"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type memRegistryStore struct {
	reg     *registry.Registry
	loadErr error
	saveErr error
	saves   int
}

func (m *memRegistryStore) SaveRegistry(_ context.Context, reg *registry.Registry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.reg = reg
	return nil
}

func (m *memRegistryStore) LoadRegistry(_ context.Context) (*registry.Registry, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.reg == nil {
		return nil, fmt.Errorf("open registry: %w", fs.ErrNotExist)
	}
	return m.reg, nil
}

type failingReference struct{}

func (failingReference) LoadReference(context.Context) (registry.ReferenceData, error) {
	return registry.ReferenceData{}, errors.New("counties.csv: permission denied")
}

type captureSink struct {
	mu         sync.Mutex
	rows       map[string][]domain.DailyRow
	registries int
	err        error
}

func newCaptureSink() *captureSink {
	return &captureSink{rows: make(map[string][]domain.DailyRow)}
}

func (c *captureSink) WriteDaily(_ context.Context, source domain.Source, metric domain.Metric, rows []domain.DailyRow) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[string(source)+"/"+string(metric)] = rows
	return nil
}

func (c *captureSink) SaveRegistry(context.Context, *registry.Registry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registries++
	return nil
}

func (c *captureSink) series(source domain.Source, metric domain.Metric) map[domain.UnitID][]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return normalize.Reconstruct(c.rows[string(source)+"/"+string(metric)])
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
	return now
}

func defaultOptions(t *testing.T) pipeline.Options {
	t.Helper()
	table, err := rules.Default()
	require.NoError(t, err)
	return pipeline.Options{
		RebuildRegistry: true,
		ReprocessFeeds:  true,
		Rules:           table,
		Remap:           remap.Options{DropJHUCruise: true, DropJHUPrisons: true},
		Synthetic:       registry.DefaultSynthetic,
	}
}

type fixture struct {
	stages  pipeline.Stages
	outputs csvfile.Outputs
	sink    *captureSink
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	paths, err := mockdata.Write(dir + "/raw")
	require.NoError(t, err)

	outputs := csvfile.Outputs{Dir: dir + "/output"}
	sink := newCaptureSink()
	return fixture{
		stages: pipeline.Stages{
			Reference: csvfile.ReferenceReader{CountyPath: paths.Counties, StatePath: paths.States, MetroPath: paths.Metros},
			Registry:  csvfile.RegistryFile{Path: outputs.Dir + "/UScounty_fips_dma.csv"},
			Feeds:     &csvfile.FeedReader{NYTPath: paths.NYT, JHUCasesPath: paths.JHUCases, JHUDeathsPath: paths.JHUDeaths},
			Cleaned:   outputs,
			Sinks:     []pipeline.NamedSink{{Name: "csv", Sink: outputs}, {Name: "capture", Sink: sink}},
			Summary:   outputs,
		},
		outputs: outputs,
		sink:    sink,
	}
}

func smallRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]domain.GeographicUnit{
		{ID: 1000, Kind: domain.KindState, StateCode: 1, Name: "All", State: "Alabama", StateAbbr: "AL", Metro: domain.NoMetro},
		{ID: 1001, Kind: domain.KindRegular, StateCode: 1, CountyCode: 1, Name: "Autauga", State: "Alabama", StateAbbr: "AL", Metro: domain.NoMetro},
	})
	require.NoError(t, err)
	return reg
}

// --- status ---

func TestPipeline_StatusBeforeRun(t *testing.T) {
	now := freezeClock(t)
	p := pipeline.New(pipeline.Stages{}, pipeline.Options{}, discardLogger(), observability.NewMetricsForTesting())

	require.Error(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, pipeline.Status{Stage: "idle", Since: now}, p.Status())
}

// --- registry stage ---

func TestRegistry_RebuildPersistsAndCopiesToSinks(t *testing.T) {
	f := newFixture(t)
	store := &memRegistryStore{}
	f.stages.Registry = store
	p := pipeline.New(f.stages, defaultOptions(t), discardLogger(), observability.NewMetricsForTesting())

	var summary pipeline.RunSummary
	reg, err := p.Registry(context.Background(), &summary)
	require.NoError(t, err)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 1, f.sink.registries)
	assert.Equal(t, pipeline.OriginBuilt, summary.Registry.Origin)
	assert.Equal(t, reg.Len(), summary.Registry.Total)
	assert.Equal(t, 11, summary.Registry.ByKind[string(domain.KindComposite)])
	assert.Equal(t, 16, summary.Registry.ByKind[string(domain.KindPartOfComposite)])
	assert.Equal(t, 2, summary.Registry.ByKind[string(domain.KindOther)])
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestRegistry_LoadsPersisted(t *testing.T) {
	store := &memRegistryStore{reg: smallRegistry(t)}
	opts := pipeline.Options{RebuildRegistry: false}
	p := pipeline.New(pipeline.Stages{Reference: failingReference{}, Registry: store}, opts, discardLogger(), observability.NewMetricsForTesting())

	var summary pipeline.RunSummary
	reg, err := p.Registry(context.Background(), &summary)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, pipeline.OriginPersisted, summary.Registry.Origin)
	assert.Zero(t, store.saves)
}

func TestRegistry_BuildsWhenNothingPersisted(t *testing.T) {
	f := newFixture(t)
	store := &memRegistryStore{}
	f.stages.Registry = store
	opts := defaultOptions(t)
	opts.RebuildRegistry = false
	p := pipeline.New(f.stages, opts, discardLogger(), observability.NewMetricsForTesting())

	var summary pipeline.RunSummary
	_, err := p.Registry(context.Background(), &summary)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OriginBuilt, summary.Registry.Origin)
	assert.Equal(t, 1, store.saves)
}

func TestRegistry_LoadErrorIsFatal(t *testing.T) {
	store := &memRegistryStore{loadErr: errors.New("registry.csv: bad kind \"x\"")}
	p := pipeline.New(pipeline.Stages{Reference: failingReference{}, Registry: store}, pipeline.Options{}, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Registry(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load registry")
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestRegistry_RebuildFailureFallsBackToPersisted(t *testing.T) {
	store := &memRegistryStore{reg: smallRegistry(t)}
	opts := pipeline.Options{RebuildRegistry: true}
	p := pipeline.New(pipeline.Stages{Reference: failingReference{}, Registry: store}, opts, discardLogger(), observability.NewMetricsForTesting())

	var summary pipeline.RunSummary
	reg, err := p.Registry(context.Background(), &summary)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, pipeline.OriginFallback, summary.Registry.Origin)
}

func TestRegistry_RebuildFailureWithoutPersisted(t *testing.T) {
	store := &memRegistryStore{}
	opts := pipeline.Options{RebuildRegistry: true}
	p := pipeline.New(pipeline.Stages{Reference: failingReference{}, Registry: store}, opts, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Registry(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

// --- full run ---

func TestRun_EndToEnd(t *testing.T) {
	now := freezeClock(t)
	f := newFixture(t)
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(f.stages, defaultOptions(t), discardLogger(), metrics)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now, summary.GeneratedAt)
	assert.Equal(t, pipeline.OriginBuilt, summary.Registry.Origin)
	assert.Equal(t, "2020-03-30", summary.RangeStart)
	assert.Equal(t, "2020-04-05", summary.RangeEnd)
	require.Len(t, summary.Series, 4)
	assert.Equal(t, pipeline.Status{Stage: pipeline.StageDone, Ready: true, Since: now}, p.Status())

	nytCases := f.sink.series(domain.SourceNYT, domain.MetricCases)
	nytDeaths := f.sink.series(domain.SourceNYT, domain.MetricDeaths)
	jhuCases := f.sink.series(domain.SourceJHU, domain.MetricCases)
	jhuDeaths := f.sink.series(domain.SourceJHU, domain.MetricDeaths)

	// "Unknown" Puerto Rico rows are state-level and add to the municipios.
	assert.Equal(t, []int64{5, 6, 57, 63, 69, 71, 81}, nytCases[72000])
	// Municipio deaths are dropped; only the island-wide row remains.
	assert.Equal(t, []int64{0, 0, 1, 1, 2, 2, 3}, nytDeaths[72000])
	assert.NotContains(t, nytDeaths, domain.UnitID(72127))
	assert.Equal(t, []int64{0, 1, 1, 2, 2, 3, 3}, jhuDeaths[72000])
	assert.NotContains(t, jhuDeaths, domain.UnitID(72001))
	assert.Equal(t, jhuDeaths[72000], jhuDeaths[domain.MetroUnitID(500)])
	assert.NotContains(t, nytCases, domain.MetroUnitID(500))

	// Placeholders fold into their counties and never appear on their own.
	assert.Equal(t, []int64{3, 4, 7, 8, 10, 11, 13}, nytCases[29095])
	assert.Equal(t, []int64{0, 1, 1, 3, 3, 5, 5}, nytCases[29097])
	assert.Equal(t, []int64{3, 5, 6, 8, 9, 11, 12}, jhuCases[29095])
	for _, id := range []domain.UnitID{29998, 29999, 29500} {
		assert.NotContains(t, nytCases, id)
	}

	// Composites are summed from their members.
	assert.Equal(t, []int64{1, 2, 3, 3, 5, 5, 6}, nytCases[25901])
	assert.Equal(t, []int64{0, 0, 0, 5, 15, 15, 15}, jhuCases[2903])
	assert.Equal(t, []int64{0, 0, 1, 1, 1, 1, 2}, jhuCases[2902])
	assert.Equal(t, []int64{90, 131, 172, 213, 254, 295, 336}, jhuCases[36901])
	assert.Equal(t, []int64{100, 150, 200, 260, 300, 380, 450}, nytCases[domain.MetroUnitID(1)])

	// Territories resolve to their designated units.
	assert.Equal(t, []int64{0, 2, 2, 2, 6, 8, 8}, nytCases[69110])
	assert.Equal(t, []int64{3, 3, 4, 5, 5, 6, 7}, jhuCases[66010])

	// Dropped entries leave no trace.
	for _, id := range []domain.UnitID{26901, 88888, 80029, 90029, 49003} {
		assert.NotContains(t, jhuCases, id)
	}
	assert.Equal(t, []int64{0, 0, 5, 5, 6, 6, 6}, sub(jhuCases[25000], add(jhuCases[25901], jhuCases[25025])))

	nyt := summary.Series[0]
	assert.Equal(t, "nyt", nyt.Source)
	assert.Equal(t, "cases", nyt.Metric)
	assert.Equal(t, mockdata.Days, nyt.Unresolved)
	assert.Equal(t, 2, nyt.PlaceholdersFolded)
	assert.Equal(t, 3, nyt.NegativeIncrements)
	assert.Equal(t, nyt.Units*mockdata.Days, nyt.DailyRows)
	assert.InDelta(t, 3, counterValue(t, metrics.NegativeIncrements.WithLabelValues("nyt", "cases")), 0)
	assert.InDelta(t, float64(nyt.Kept), counterValue(t, metrics.ObservationsKept.WithLabelValues("nyt", "cases")), 0)
	assert.InDelta(t, 0, gaugeValue(t, metrics.PipelineRunning), 0)

	fromFile, err := f.outputs.ReadDaily(domain.SourceNYT, domain.MetricCases)
	require.NoError(t, err)
	if diff := cmp.Diff(nytCases, normalize.Reconstruct(fromFile)); diff != "" {
		t.Errorf("daily file mismatch (-sink +file):\n%s", diff)
	}
}

func TestRun_ReusesCleanedTables(t *testing.T) {
	freezeClock(t)
	f := newFixture(t)
	first := pipeline.New(f.stages, defaultOptions(t), discardLogger(), observability.NewMetricsForTesting())
	_, err := first.Run(context.Background())
	require.NoError(t, err)
	want := f.sink.series(domain.SourceJHU, domain.MetricCases)

	again := newCaptureSink()
	stages := f.stages
	stages.Feeds = nil
	stages.Reference = failingReference{}
	stages.Sinks = []pipeline.NamedSink{{Name: "capture", Sink: again}}
	opts := defaultOptions(t)
	opts.RebuildRegistry = false
	opts.ReprocessFeeds = false

	summary, err := pipeline.New(stages, opts, discardLogger(), observability.NewMetricsForTesting()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OriginPersisted, summary.Registry.Origin)
	assert.Equal(t, "2020-03-30", summary.RangeStart)
	if diff := cmp.Diff(want, again.series(domain.SourceJHU, domain.MetricCases)); diff != "" {
		t.Errorf("reloaded series mismatch (-first +second):\n%s", diff)
	}
}

func TestRun_SinkErrorStopsRun(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("disk full")
	p := pipeline.New(f.stages, defaultOptions(t), discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to capture")
	assert.NotEqual(t, pipeline.StageDone, p.Status().Stage)
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.New(f.stages, defaultOptions(t), discardLogger(), observability.NewMetricsForTesting()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func add(a, b []int64) []int64 {
	out := make([]int64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func sub(a, b []int64) []int64 {
	out := make([]int64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
