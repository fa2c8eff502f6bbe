package domain

import (
	"fmt"
	"time"
)

// Source names the feed that produced an observation.
type Source string

const (
	SourceNYT Source = "nyt"
	SourceJHU Source = "jhu"
)

// Sources lists every feed in processing order.
var Sources = []Source{SourceNYT, SourceJHU}

// ParseSource validates a feed name.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourceNYT, SourceJHU:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Metric names a cumulative count.
type Metric string

const (
	MetricCases  Metric = "cases"
	MetricDeaths Metric = "deaths"
)

// Metrics lists every metric in processing order.
var Metrics = []Metric{MetricCases, MetricDeaths}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricCases, MetricDeaths:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Short returns the one-letter file suffix used for output tables ("c" or "d").
func (m Metric) Short() string {
	return string(m)[:1]
}

// RawObservation is one feed row for one date, before identifier correction.
type RawObservation struct {
	Source Source
	RawID  UnitID
	HasID  bool   // false when the feed left the identifier blank
	Region string // county-level name as given by the feed
	Parent string // state-level name as given by the feed
	Date   time.Time
	Cases  int64
	Deaths int64
}

// Value returns the cumulative count for the metric.
func (o RawObservation) Value(m Metric) int64 {
	if m == MetricDeaths {
		return o.Deaths
	}
	return o.Cases
}

// RemappedObservation is a RawObservation whose identifier resolved to a canonical unit.
type RemappedObservation struct {
	Source Source
	ID     UnitID
	Region string
	Parent string
	Date   time.Time
	Cases  int64
	Deaths int64
}

// Value returns the cumulative count for the metric.
func (o RemappedObservation) Value(m Metric) int64 {
	if m == MetricDeaths {
		return o.Deaths
	}
	return o.Cases
}

// AsRaw turns a remapped observation back into raw form, identifier included.
func (o RemappedObservation) AsRaw() RawObservation {
	return RawObservation{
		Source: o.Source,
		RawID:  o.ID,
		HasID:  true,
		Region: o.Region,
		Parent: o.Parent,
		Date:   o.Date,
		Cases:  o.Cases,
		Deaths: o.Deaths,
	}
}
