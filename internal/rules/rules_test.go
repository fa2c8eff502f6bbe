package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	assert.NotEmpty(t, table.Corrections)
	assert.Equal(t, []string{"Unknown"}, table.CatchAll.Buckets["nyt"])
	assert.Len(t, table.Placeholders, 2)
	assert.Equal(t, []int{2902, 2903, 36901}, table.Composites["jhu"])
	assert.Equal(t, []int{500}, table.Metros.Exclude["nyt"])
	assert.Contains(t, table.Metros.WideMembership, 156)

	var kc *Rule
	for i := range table.Corrections {
		if table.Corrections[i].Name == "kansas-city-placeholder" {
			kc = &table.Corrections[i]
		}
	}
	require.NotNil(t, kc)
	require.NotNil(t, kc.Set)
	assert.Equal(t, 29998, kc.Set.ID)
	assert.Equal(t, "Kansas City", kc.Match.Region)
}

const minimalTable = `
corrections:
  - name: nyc
    match: {source: nyt, region: New York City}
    set: {id: 36901}
catch_all:
  buckets:
    nyt: [Unknown]
  policies:
    - {name: pr, source: nyt, parent: Puerto Rico, region: Unknown, treatment: state}
`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(minimalTable))
	require.NoError(t, err)
	require.Len(t, table.Corrections, 1)
	assert.Equal(t, TreatState, table.CatchAll.Policies[0].Treatment)

	_, err = Parse([]byte("corrections:\n  - name: x\n    matchh: {source: nyt}\n    drop: true\n"))
	require.Error(t, err, "unknown keys are rejected")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalTable), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, table.Corrections, 1)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	table, err = Load("")
	require.NoError(t, err)
	assert.Greater(t, len(table.Corrections), 1)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"missing name", Rule{Match: Match{Source: "nyt"}, Drop: true}},
		{"no action", Rule{Name: "x", Match: Match{Source: "nyt"}}},
		{"both actions", Rule{Name: "x", Match: Match{Source: "nyt"}, Drop: true, Set: &Set{ID: 1001}}},
		{"empty set", Rule{Name: "x", Match: Match{Source: "nyt"}, Set: &Set{}}},
		{"unknown source", Rule{Name: "x", Match: Match{Source: "cdc"}, Drop: true}},
		{"unknown metric", Rule{Name: "x", Match: Match{Metric: "tests"}, Drop: true}},
		{"unknown option", Rule{Name: "x", Match: Match{Source: "jhu", Option: "drop_everything"}, Drop: true}},
		{"bad date", Rule{Name: "x", Match: Match{Source: "nyt", From: "04/01/2020"}, Drop: true}},
		{"inverted window", Rule{Name: "x", Match: Match{Source: "nyt", From: "2020-05-01", To: "2020-04-01"}, Drop: true}},
		{"matches everything", Rule{Name: "x", Drop: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Table{Corrections: []Rule{tt.rule}})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidRule)
		})
	}
}

func TestValidate_PolicyOverlap(t *testing.T) {
	buckets := map[string][]string{"nyt": {"Unknown"}, "jhu": {"Unassigned"}}
	policy := func(name, metric, from, to string) Policy {
		return Policy{Name: name, Source: "nyt", Metric: metric, Parent: "Utah", Region: "Unknown",
			From: from, To: to, Treatment: TreatState}
	}

	tests := []struct {
		name     string
		policies []Policy
		overlap  bool
	}{
		{"disjoint windows", []Policy{
			policy("early", "", "", "2020-04-15"),
			policy("late", "", "2020-04-16", ""),
		}, false},
		{"touching windows", []Policy{
			policy("early", "", "", "2020-04-15"),
			policy("late", "", "2020-04-15", ""),
		}, true},
		{"open window overlaps everything", []Policy{
			policy("always", "", "", ""),
			policy("april", "", "2020-04-01", "2020-04-30"),
		}, true},
		{"distinct metrics", []Policy{
			policy("cases", "cases", "", ""),
			policy("deaths", "deaths", "", ""),
		}, false},
		{"empty metric overlaps both", []Policy{
			policy("any", "", "", ""),
			policy("deaths", "deaths", "", ""),
		}, true},
		{"parent compared case-insensitively", []Policy{
			policy("a", "", "", ""),
			{Name: "b", Source: "nyt", Parent: "UTAH", Region: "unknown", Treatment: TreatDrop},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Table{CatchAll: CatchAll{Buckets: buckets, Policies: tt.policies}})
			if tt.overlap {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "overlap")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidate_Policy(t *testing.T) {
	buckets := map[string][]string{"nyt": {"Unknown"}}
	tests := []struct {
		name   string
		policy Policy
	}{
		{"region not a bucket", Policy{Name: "x", Source: "nyt", Parent: "Utah", Region: "Jackson", Treatment: TreatState}},
		{"unit without id", Policy{Name: "x", Source: "nyt", Parent: "Utah", Region: "Unknown", Treatment: TreatUnit}},
		{"state with id", Policy{Name: "x", Source: "nyt", Parent: "Utah", Region: "Unknown", Treatment: TreatState, Unit: 49000}},
		{"unknown treatment", Policy{Name: "x", Source: "nyt", Parent: "Utah", Region: "Unknown", Treatment: "keep"}},
		{"missing parent", Policy{Name: "x", Source: "nyt", Region: "Unknown", Treatment: TreatDrop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Table{CatchAll: CatchAll{Buckets: buckets, Policies: []Policy{tt.policy}}})
			assert.ErrorIs(t, err, domain.ErrInvalidRule)
		})
	}
}

func TestValidate_Placeholders(t *testing.T) {
	err := Validate(Table{Placeholders: []Placeholder{
		{ID: 29998, Name: "Kansas City", Into: 29095},
		{ID: 29998, Name: "Kansas City again", Into: 29095},
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	err = Validate(Table{Placeholders: []Placeholder{{ID: 29998, Name: "Kansas City", Into: 20095}}})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)
}

func TestMatchesName(t *testing.T) {
	assert.True(t, MatchesName("Unknown", "unknown"))
	assert.True(t, MatchesName("Out of*", "Out of AL"))
	assert.True(t, MatchesName("Doña Ana", "DOÑA  ANA"))
	assert.False(t, MatchesName("Bristol Bay", "Bristol Bay plus Lake and Peninsula"))
	assert.False(t, MatchesName("Out of*", "Outagamie"))
}

func TestInWindow(t *testing.T) {
	from, _ := ParseDay("2020-04-01")
	to, _ := ParseDay("2020-04-07")
	day := func(s string) time.Time { d, _ := ParseDay(s); return d }

	assert.True(t, InWindow(day("2020-04-07"), from, to))
	assert.False(t, InWindow(day("2020-04-08"), from, to))
	assert.True(t, InWindow(day("2019-01-01"), time.Time{}, to))
	assert.True(t, InWindow(day("2030-01-01"), from, time.Time{}))
}
