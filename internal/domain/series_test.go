package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestUnitIDHelpers(t *testing.T) {
	tests := []struct {
		name   string
		id     UnitID
		state  int
		county int
		total  bool
		str    string
	}{
		{"regular county", 29095, 29, 95, false, "29095"},
		{"alaska composite", 2903, 2, 903, false, "02903"},
		{"state total", StateUnitID(72), 72, 0, true, "72000"},
		{"metro", MetroUnitID(156), 99, 156, false, "99156"},
		{"metro block zero slot", 99000, 99, 0, false, "99000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, tt.id.StateCode())
			assert.Equal(t, tt.county, tt.id.CountyCode())
			assert.Equal(t, tt.total, tt.id.IsStateTotal())
			assert.Equal(t, tt.str, tt.id.String())
		})
	}
}

func TestParseUnitKind(t *testing.T) {
	k, err := ParseUnitKind("part-of-composite")
	require.NoError(t, err)
	assert.Equal(t, KindPartOfComposite, k)
	assert.False(t, k.Aggregates())
	assert.True(t, KindMetro.Aggregates())

	_, err = ParseUnitKind("borough")
	require.Error(t, err)
}

func TestDateRange(t *testing.T) {
	r, err := NewDateRange(date("2020-03-01"), date("2020-03-04").Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, r.Len())
	i, ok := r.Index(date("2020-03-03"))
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = r.Index(date("2020-03-05"))
	assert.False(t, ok)
	assert.Equal(t, date("2020-03-02"), r.Date(1))

	wider := r.Union(DateRange{Start: date("2020-02-28"), End: date("2020-03-02")})
	assert.Equal(t, date("2020-02-28"), wider.Start)
	assert.Equal(t, date("2020-03-04"), wider.End)
	assert.Equal(t, r, DateRange{}.Union(r))

	_, err = NewDateRange(date("2020-03-02"), date("2020-03-01"))
	require.Error(t, err)
}

func TestSeriesSet(t *testing.T) {
	r, err := NewDateRange(date("2020-03-01"), date("2020-03-03"))
	require.NoError(t, err)
	set := NewSeriesSet(SourceJHU, MetricCases, r)

	require.NoError(t, set.Put(&SeriesEntry{ID: 2066, Values: []int64{1, 2, 3}}))
	require.NoError(t, set.Put(&SeriesEntry{ID: 2063, Values: []int64{0, 0, 1}}))
	require.Error(t, set.Put(&SeriesEntry{ID: 2000, Values: []int64{1}}))

	assert.Equal(t, []UnitID{2063, 2066}, set.IDs())
	assert.Equal(t, 2, set.Len())

	require.NoError(t, set.Relabel(2066, 2999))
	assert.False(t, set.Has(2066))
	e, ok := set.Get(2999)
	require.True(t, ok)
	assert.Equal(t, UnitID(2999), e.ID)

	err = set.Relabel(2063, 2999)
	assert.True(t, errors.Is(err, ErrCompositeExists))

	set.Delete(2999)
	assert.Equal(t, []UnitID{2063}, set.IDs())
}

func TestErrorTaxonomy(t *testing.T) {
	unresolved := &UnresolvedError{Source: SourceNYT, Region: "Nowhere", Parent: "Ohio"}
	assert.ErrorIs(t, unresolved, ErrUnresolvedIdentifier)
	assert.Contains(t, unresolved.Error(), "has no identifier")

	membership := &MembershipError{Unit: 49003, First: 49901, Second: 49902}
	assert.ErrorIs(t, membership, ErrAmbiguousCompositeMembership)

	neg := NegativeIncrement{Source: SourceNYT, Metric: MetricCases, ID: 1001, Date: date("2020-05-01"), Daily: -2}
	assert.ErrorIs(t, neg, ErrNonMonotonicSeries)
	assert.Contains(t, neg.Error(), "2020-05-01")
}

func TestClock(t *testing.T) {
	fixed := time.Date(2021, 3, 1, 6, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	assert.Equal(t, fixed, Now())
	assert.Equal(t, time.Duration(0), Since(fixed))
}

func TestMetricShort(t *testing.T) {
	assert.Equal(t, "c", MetricCases.Short())
	assert.Equal(t, "d", MetricDeaths.Short())

	m, err := ParseMetric("deaths")
	require.NoError(t, err)
	assert.Equal(t, MetricDeaths, m)
	_, err = ParseSource("cdc")
	require.Error(t, err)
}
