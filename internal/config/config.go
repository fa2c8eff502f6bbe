package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all curation settings, populated from environment variables.
type Config struct {
	// Reference tables.
	CountyReferencePath string
	StateReferencePath  string
	MetroReferencePath  string

	// Source feeds.
	NYTFeedPath   string
	JHUCasesPath  string
	JHUDeathsPath string
	OutputDir     string
	RegistryFile  string
	RulesFile     string // empty uses the embedded rule table

	RebuildRegistry bool
	ReprocessFeeds  bool
	DropJHUCruise   bool
	DropJHUPrisons  bool

	HTTPAddr        string // empty disables the metrics server
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional sinks. Empty values disable them.
	KafkaBrokers []string
	KafkaTopic   string
	SQLitePath   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CountyReferencePath: sharedcfg.EnvOrDefault("COUNTY_REFERENCE_PATH", "data/reference/counties.csv"),
		StateReferencePath:  sharedcfg.EnvOrDefault("STATE_REFERENCE_PATH", "data/reference/states.csv"),
		MetroReferencePath:  sharedcfg.EnvOrDefault("METRO_REFERENCE_PATH", "data/reference/county_dma.csv"),
		NYTFeedPath:         sharedcfg.EnvOrDefault("NYT_FEED_PATH", "data/raw/nytimes/us-counties.csv"),
		JHUCasesPath:        sharedcfg.EnvOrDefault("JHU_CASES_PATH", "data/raw/jhu/time_series_covid19_confirmed_US.csv"),
		JHUDeathsPath:       sharedcfg.EnvOrDefault("JHU_DEATHS_PATH", "data/raw/jhu/time_series_covid19_deaths_US.csv"),
		OutputDir:           sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/output"),
		RulesFile:           sharedcfg.EnvOrDefault("RULES_FILE", ""),
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")),
		KafkaTopic:          sharedcfg.EnvOrDefault("KAFKA_TOPIC", "covid-daily-counts"),
		SQLitePath:          sharedcfg.EnvOrDefault("SQLITE_PATH", ""),
	}
	cfg.RegistryFile = sharedcfg.EnvOrDefault("REGISTRY_FILE", filepath.Join(cfg.OutputDir, "UScounty_fips_dma.csv"))

	toggles := []struct {
		key      string
		fallback bool
		dst      *bool
	}{
		{"REBUILD_REGISTRY", true, &cfg.RebuildRegistry},
		{"REPROCESS_FEEDS", true, &cfg.ReprocessFeeds},
		{"DROP_JHU_CRUISE", true, &cfg.DropJHUCruise},
		{"DROP_JHU_PRISONS", true, &cfg.DropJHUPrisons},
	}
	for _, tg := range toggles {
		v, err := parseBool(tg.key, tg.fallback)
		if err != nil {
			return nil, err
		}
		*tg.dst = v
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, errors.New("invalid LOG_FORMAT: must be json or text")
	}

	return cfg, nil
}

// KafkaEnabled reports whether daily rows are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseBool(key string, fallback bool) (bool, error) {
	s := sharedcfg.EnvOrDefault(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}
