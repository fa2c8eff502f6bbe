package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/aggregate"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/normalize"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/couchcryptid/covid-data-etl/internal/remap"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
)

// Stage names reported by Status and used as the stage_duration_seconds label.
const (
	StageFeeds    = "feeds"
	StageRegistry = "registry"
	StageCurate   = "curate"
	StageDaily    = "daily"
	StageDone     = "done"
)

// FeedSource reads the raw observations of one source and metric.
type FeedSource interface {
	LoadFeed(ctx context.Context, source domain.Source, metric domain.Metric) ([]domain.RawObservation, error)
}

// CleanedStore persists the aggregated cumulative series so later runs can skip
// remapping and aggregation.
type CleanedStore interface {
	SaveCleaned(ctx context.Context, set *domain.SeriesSet) error
	LoadCleaned(ctx context.Context, source domain.Source, metric domain.Metric) (*domain.SeriesSet, error)
}

// DailySink receives the daily rows of one source and metric.
type DailySink interface {
	WriteDaily(ctx context.Context, source domain.Source, metric domain.Metric, rows []domain.DailyRow) error
}

// RegistrySink is implemented by sinks that also keep a copy of the registry.
type RegistrySink interface {
	SaveRegistry(ctx context.Context, reg *registry.Registry) error
}

// SummaryWriter records the run summary.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, v any) error
}

// NamedSink labels a daily sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink DailySink
}

// Stages holds the adapters a run reads from and writes to.
type Stages struct {
	Reference registry.ReferenceSource
	Registry  registry.Store
	Feeds     FeedSource
	Cleaned   CleanedStore
	Sinks     []NamedSink
	Summary   SummaryWriter
}

// Options controls which stages run and how.
type Options struct {
	RebuildRegistry bool
	ReprocessFeeds  bool
	Rules           rules.Table
	Remap           remap.Options
	Synthetic       []domain.GeographicUnit
}

// Status is a point-in-time view of a run.
type Status struct {
	Stage string    `json:"stage"`
	Ready bool      `json:"ready"`
	Since time.Time `json:"since"`
}

type feedKey struct {
	source domain.Source
	metric domain.Metric
}

// Pipeline runs one curation pass: registry, remap, aggregate, normalize, publish.
type Pipeline struct {
	stages  Stages
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu     sync.Mutex
	status Status
}

// New creates a Pipeline with the given adapters and observability.
func New(stages Stages, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:  stages,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		status:  Status{Stage: "idle", Since: domain.Now()},
	}
}

// CheckReadiness returns nil once the registry is available.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("registry has not been loaded yet")
	}
	return nil
}

// Status reports the stage the run is in.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Ready = p.ready.Load()
	return s
}

func (p *Pipeline) enter(stage string) time.Time {
	now := domain.Now()
	p.mu.Lock()
	p.status = Status{Stage: stage, Since: now}
	p.mu.Unlock()
	p.logger.Info("stage started", "stage", stage)
	return now
}

func (p *Pipeline) leave(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(domain.Since(start).Seconds())
}

// Run executes a full pass and returns its summary. Input files are read before
// any output is written.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	p.logger.Info("pipeline started",
		"rebuild_registry", p.opts.RebuildRegistry,
		"reprocess_feeds", p.opts.ReprocessFeeds,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary := &RunSummary{
		RebuildRegistry: p.opts.RebuildRegistry,
		ReprocessFeeds:  p.opts.ReprocessFeeds,
	}

	var feeds map[feedKey][]domain.RawObservation
	if p.opts.ReprocessFeeds {
		var err error
		if feeds, err = p.loadFeeds(ctx); err != nil {
			return nil, err
		}
	}

	reg, err := p.Registry(ctx, summary)
	if err != nil {
		return nil, err
	}

	sets, err := p.curate(ctx, reg, feeds, summary)
	if err != nil {
		return nil, err
	}

	start := p.enter(StageDaily)
	for i, set := range sets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := p.publishDaily(ctx, set)
		if err != nil {
			return nil, err
		}
		summary.Series[i].DailyRows = n.rows
		summary.Series[i].NegativeIncrements = n.negative
	}
	p.leave(StageDaily, start)

	summary.GeneratedAt = domain.Now()
	if p.stages.Summary != nil {
		if err := p.stages.Summary.WriteSummary(ctx, summary); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}
	p.enter(StageDone)
	p.logger.Info("pipeline finished", "series", len(summary.Series), "units", summary.Registry.Total)
	return summary, nil
}

func (p *Pipeline) loadFeeds(ctx context.Context) (map[feedKey][]domain.RawObservation, error) {
	start := p.enter(StageFeeds)
	defer p.leave(StageFeeds, start)

	feeds := make(map[feedKey][]domain.RawObservation)
	for _, src := range domain.Sources {
		for _, m := range domain.Metrics {
			obs, err := p.stages.Feeds.LoadFeed(ctx, src, m)
			if err != nil {
				return nil, fmt.Errorf("load %s %s feed: %w", src, m, err)
			}
			feeds[feedKey{src, m}] = obs
			p.metrics.ObservationsRead.WithLabelValues(string(src), string(m)).Add(float64(len(obs)))
			p.logger.Info("feed loaded", "source", string(src), "metric", string(m), "observations", len(obs))
		}
	}
	return feeds, nil
}

// Registry obtains the registry according to RebuildRegistry, persists a freshly
// built one, and copies it to every sink that keeps one. summary may be nil.
func (p *Pipeline) Registry(ctx context.Context, summary *RunSummary) (*registry.Registry, error) {
	start := p.enter(StageRegistry)
	defer p.leave(StageRegistry, start)

	reg, origin, err := p.obtainRegistry(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range p.stages.Sinks {
		rs, ok := s.Sink.(RegistrySink)
		if !ok {
			continue
		}
		if err := rs.SaveRegistry(ctx, reg); err != nil {
			return nil, fmt.Errorf("save registry to %s: %w", s.Name, err)
		}
	}

	counts := reg.CountByKind()
	for kind, n := range counts {
		p.metrics.RegistryUnits.WithLabelValues(string(kind)).Set(float64(n))
	}
	if summary != nil {
		summary.Registry = RegistrySummary{Origin: origin, Total: reg.Len(), ByKind: make(map[string]int, len(counts))}
		for kind, n := range counts {
			summary.Registry.ByKind[string(kind)] = n
		}
	}
	p.ready.Store(true)
	p.logger.Info("registry ready", "origin", origin, "units", reg.Len())
	return reg, nil
}

func (p *Pipeline) obtainRegistry(ctx context.Context) (*registry.Registry, string, error) {
	if !p.opts.RebuildRegistry {
		reg, err := p.stages.Registry.LoadRegistry(ctx)
		if err == nil {
			return reg, OriginPersisted, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("load registry: %w", err)
		}
		p.logger.Warn("no persisted registry, building one")
	}

	reg, buildErr := p.buildRegistry(ctx)
	if buildErr == nil {
		if err := p.stages.Registry.SaveRegistry(ctx, reg); err != nil {
			return nil, "", fmt.Errorf("save registry: %w", err)
		}
		return reg, OriginBuilt, nil
	}
	if !p.opts.RebuildRegistry {
		return nil, "", buildErr
	}

	p.logger.Error("registry build failed, using persisted registry", "error", buildErr)
	reg, err := p.stages.Registry.LoadRegistry(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("registry: %w", errors.Join(buildErr, err))
	}
	return reg, OriginFallback, nil
}

func (p *Pipeline) buildRegistry(ctx context.Context) (*registry.Registry, error) {
	ref, err := p.stages.Reference.LoadReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	reg, _, err := registry.Build(ref, p.opts.Synthetic, p.logger)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return reg, nil
}

// curate produces one aggregated series set per source and metric, either from the
// feeds or from the persisted cleaned tables.
func (p *Pipeline) curate(ctx context.Context, reg *registry.Registry, feeds map[feedKey][]domain.RawObservation, summary *RunSummary) ([]*domain.SeriesSet, error) {
	start := p.enter(StageCurate)
	defer p.leave(StageCurate, start)

	if !p.opts.ReprocessFeeds {
		return p.loadCleaned(ctx, summary)
	}

	all := make([][]domain.RawObservation, 0, len(feeds))
	for _, obs := range feeds {
		all = append(all, obs)
	}
	rng, err := normalize.ObservedRange(all...)
	if err != nil {
		return nil, fmt.Errorf("observed range: %w", err)
	}
	summary.setRange(rng)

	remapper, err := remap.New(p.opts.Rules, reg, p.opts.Remap, p.logger)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	agg := aggregate.New(reg, p.opts.Rules, p.logger)

	var sets []*domain.SeriesSet
	for _, src := range domain.Sources {
		for _, m := range domain.Metrics {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			set, s, err := p.curateOne(ctx, remapper, agg, src, m, feeds[feedKey{src, m}], rng)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
			summary.Series = append(summary.Series, s)
		}
	}
	return sets, nil
}

func (p *Pipeline) curateOne(ctx context.Context, remapper *remap.Remapper, agg *aggregate.Aggregator,
	src domain.Source, m domain.Metric, obs []domain.RawObservation, rng domain.DateRange,
) (*domain.SeriesSet, SeriesSummary, error) {
	s := SeriesSummary{Source: string(src), Metric: string(m)}
	labels := []string{string(src), string(m)}

	remapped, rep := remapper.Apply(obs, m)
	s.Input, s.Kept, s.Unresolved, s.DroppedByRule = rep.Input, rep.Kept, rep.Unresolved, rep.DroppedByRule
	p.metrics.ObservationsKept.WithLabelValues(labels...).Add(float64(rep.Kept))
	p.metrics.ObservationsDropped.WithLabelValues(string(src), string(m), "unresolved").Add(float64(rep.Unresolved))
	for rule, n := range rep.DroppedByRule {
		p.metrics.ObservationsDropped.WithLabelValues(string(src), string(m), rule).Add(float64(n))
	}
	for rule, n := range rep.RuleHits {
		p.metrics.RuleHits.WithLabelValues(string(src), rule).Add(float64(n))
	}

	set, err := normalize.BuildSeries(src, m, remapped, rng)
	if err != nil {
		return nil, s, fmt.Errorf("build %s %s series: %w", src, m, err)
	}
	aggRep, err := agg.Run(set)
	if err != nil {
		return nil, s, fmt.Errorf("aggregate %s %s: %w", src, m, err)
	}
	s.PlaceholdersFolded = aggRep.PlaceholdersFolded
	s.StateTotals = aggRep.StateTotals
	s.Composites = aggRep.Composites
	s.Metros = aggRep.Metros
	for kind, n := range map[string]int{
		"placeholder": aggRep.PlaceholdersFolded,
		"state":       aggRep.StateTotals,
		"composite":   aggRep.Composites,
		"metro":       aggRep.Metros,
	} {
		p.metrics.CompositesBuilt.WithLabelValues(string(src), string(m), kind).Add(float64(n))
	}
	s.Units = set.Len()

	if err := p.stages.Cleaned.SaveCleaned(ctx, set); err != nil {
		return nil, s, fmt.Errorf("save %s %s cleaned: %w", src, m, err)
	}
	p.logger.Info("series curated",
		"source", string(src),
		"metric", string(m),
		"kept", rep.Kept,
		"dropped", rep.Dropped(),
		"units", set.Len(),
	)
	return set, s, nil
}

func (p *Pipeline) loadCleaned(ctx context.Context, summary *RunSummary) ([]*domain.SeriesSet, error) {
	var sets []*domain.SeriesSet
	var rng domain.DateRange
	for _, src := range domain.Sources {
		for _, m := range domain.Metrics {
			set, err := p.stages.Cleaned.LoadCleaned(ctx, src, m)
			if err != nil {
				return nil, fmt.Errorf("load %s %s cleaned: %w", src, m, err)
			}
			rng = rng.Union(set.Range)
			sets = append(sets, set)
			summary.Series = append(summary.Series, SeriesSummary{Source: string(src), Metric: string(m), Units: set.Len()})
		}
	}
	summary.setRange(rng)
	return sets, nil
}

type dailyCounts struct {
	rows     int
	negative int
}

func (p *Pipeline) publishDaily(ctx context.Context, set *domain.SeriesSet) (dailyCounts, error) {
	rows, rep := normalize.Daily(set, p.logger)
	p.metrics.NegativeIncrements.WithLabelValues(string(set.Source), string(set.Metric)).Add(float64(len(rep.Negative)))

	for _, s := range p.stages.Sinks {
		if err := s.Sink.WriteDaily(ctx, set.Source, set.Metric, rows); err != nil {
			return dailyCounts{}, fmt.Errorf("write %s %s daily to %s: %w", set.Source, set.Metric, s.Name, err)
		}
		p.metrics.RowsPublished.WithLabelValues(s.Name).Add(float64(len(rows)))
	}
	return dailyCounts{rows: rep.Rows, negative: len(rep.Negative)}, nil
}
