package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/covid-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-data-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/covid-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/covid-data-etl/internal/config"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/couchcryptid/covid-data-etl/internal/pipeline"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	"github.com/couchcryptid/covid-data-etl/internal/remap"
	"github.com/couchcryptid/covid-data-etl/internal/rules"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full curation pass (the default)",
	RunE:  runCurate,
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Build (or load) the registry and persist it without touching the feeds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, closeAll, err := newPipeline(cfg, logger, observability.NewMetrics())
		if err != nil {
			return err
		}
		defer closeAll()

		reg, err := p.Registry(ctx, nil)
		if err != nil {
			logger.Error("registry failed", "error", err)
			return err
		}
		for kind, n := range reg.CountByKind() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", kind, n)
		}
		return nil
	},
}

func runCurate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, closeAll, err := newPipeline(cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer closeAll()

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	summary, runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	} else {
		for _, s := range summary.Series {
			fmt.Fprintf(cmd.OutOrStdout(), "%-4s %-7s units=%-6d daily_rows=%-8d negative=%d\n",
				s.Source, s.Metric, s.Units, s.DailyRows, s.NegativeIncrements)
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return runErr
}

// newPipeline wires the file adapters and every configured optional sink. The
// returned func closes the sinks.
func newPipeline(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Pipeline, func(), error) {
	table, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, nil, err
	}

	outputs := csvfile.Outputs{Dir: cfg.OutputDir}
	stages := pipeline.Stages{
		Reference: csvfile.ReferenceReader{
			CountyPath: cfg.CountyReferencePath,
			StatePath:  cfg.StateReferencePath,
			MetroPath:  cfg.MetroReferencePath,
			Logger:     logger,
		},
		Registry: csvfile.RegistryFile{Path: cfg.RegistryFile},
		Feeds: &csvfile.FeedReader{
			NYTPath:       cfg.NYTFeedPath,
			JHUCasesPath:  cfg.JHUCasesPath,
			JHUDeathsPath: cfg.JHUDeathsPath,
		},
		Cleaned: outputs,
		Sinks:   []pipeline.NamedSink{{Name: "csv", Sink: outputs}},
		Summary: outputs,
	}

	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("sink close error", "error", err)
			}
		}
	}

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		stages.Sinks = append(stages.Sinks, pipeline.NamedSink{Name: "sqlite", Sink: store})
		logger.Info("sqlite sink enabled", "path", cfg.SQLitePath)
	}
	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg, logger)
		closers = append(closers, w.Close)
		stages.Sinks = append(stages.Sinks, pipeline.NamedSink{Name: "kafka", Sink: w})
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	opts := pipeline.Options{
		RebuildRegistry: cfg.RebuildRegistry,
		ReprocessFeeds:  cfg.ReprocessFeeds,
		Rules:           table,
		Remap:           remap.Options{DropJHUCruise: cfg.DropJHUCruise, DropJHUPrisons: cfg.DropJHUPrisons},
		Synthetic:       registry.DefaultSynthetic,
	}
	return pipeline.New(stages, opts, logger, metrics), closeAll, nil
}
