package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// BuildReport counts what the builder produced and which lookups fell back.
type BuildReport struct {
	Counties        int
	States          int
	Metros          int
	Synthetic       int
	SkippedExisting []domain.UnitID
	MissingState    []domain.UnitID
	MissingMetro    []domain.UnitID
	MissingMembers  []domain.UnitID
}

type metroKey struct{ state, county int }

type metroInfo struct {
	code int
	name string
}

// Build assembles the registry from the base reference tables and a synthetic unit list.
// Missing auxiliary entries are warnings; an invalid synthetic list or a unit claimed by
// two composites is an error.
func Build(ref ReferenceData, synthetic []domain.GeographicUnit, logger *slog.Logger) (*Registry, BuildReport, error) {
	var report BuildReport

	if err := ValidateSynthetic(synthetic); err != nil {
		return nil, report, fmt.Errorf("validate synthetic units: %w", err)
	}

	states := make(map[int]StateRecord, len(ref.States))
	for _, s := range ref.States {
		states[s.Code] = s
	}
	metros := make(map[metroKey]metroInfo, len(ref.Metros))
	metroNames := make(map[int]string)
	for _, m := range ref.Metros {
		metros[metroKey{m.StateCode, m.CountyCode}] = metroInfo{code: m.Metro, name: m.MetroName}
		if _, ok := metroNames[m.Metro]; !ok {
			metroNames[m.Metro] = m.MetroName
		}
	}

	units := make(map[domain.UnitID]domain.GeographicUnit)
	stateCodes := make(map[int]bool)
	for code := range states {
		stateCodes[code] = true
	}

	for _, c := range ref.Counties {
		id := domain.UnitID(c.StateCode*1000 + c.CountyCode)
		if _, dup := units[id]; dup {
			logger.Warn("duplicate county reference row", "fips", id.String())
			continue
		}
		u := domain.GeographicUnit{
			ID:         id,
			Kind:       domain.KindRegular,
			StateCode:  c.StateCode,
			CountyCode: c.CountyCode,
			Name:       c.Name,
			LongName:   c.LongName,
			Metro:      domain.NoMetro,
		}
		if s, ok := states[c.StateCode]; ok {
			u.State, u.StateAbbr = s.Name, s.Abbr
		} else {
			report.MissingState = append(report.MissingState, id)
			logger.Warn("county has no state reference row", "fips", id.String(), "error", domain.ErrMissingReferenceEntry)
		}
		if m, ok := metros[metroKey{c.StateCode, c.CountyCode}]; ok {
			u.Metro, u.MetroName = m.code, m.name
		} else {
			report.MissingMetro = append(report.MissingMetro, id)
			logger.Warn("county has no metro assignment", "fips", id.String(), "error", domain.ErrMissingReferenceEntry)
		}
		units[id] = u
		stateCodes[c.StateCode] = true
		report.Counties++
	}

	for _, su := range synthetic {
		if _, exists := units[su.ID]; exists {
			report.SkippedExisting = append(report.SkippedExisting, su.ID)
			continue
		}
		if s, ok := states[su.StateCode]; ok && su.State == "" {
			su.State, su.StateAbbr = s.Name, s.Abbr
		}
		su.Members = slices.Clone(su.Members)
		units[su.ID] = su
		stateCodes[su.StateCode] = true
		report.Synthetic++
	}

	// Members of synthetic composites are flagged regardless of whether the composite
	// itself came from the base table.
	for _, su := range synthetic {
		if su.Kind != domain.KindComposite {
			continue
		}
		for _, m := range su.Members {
			u, ok := units[m]
			if !ok {
				report.MissingMembers = append(report.MissingMembers, m)
				logger.Warn("composite member not in county reference",
					"fips", m.String(), "composite", su.ID.String(), "error", domain.ErrMissingReferenceEntry)
				continue
			}
			u.Kind = domain.KindPartOfComposite
			units[m] = u
		}
	}

	for _, code := range slices.Sorted(maps.Keys(stateCodes)) {
		s := states[code]
		id := domain.StateUnitID(code)
		if _, exists := units[id]; exists {
			continue
		}
		units[id] = domain.GeographicUnit{
			ID:        id,
			Kind:      domain.KindState,
			StateCode: code,
			Name:      "All",
			LongName:  s.Name + " --- All (not a real FIPS)",
			State:     s.Name,
			StateAbbr: s.Abbr,
			Metro:     domain.NoMetro,
		}
		report.States++
	}

	metroMembers := make(map[int][]domain.UnitID)
	for _, uid := range slices.Sorted(maps.Keys(units)) {
		if u := units[uid]; u.Kind == domain.KindRegular && u.HasMetro() {
			metroMembers[u.Metro] = append(metroMembers[u.Metro], uid)
		}
	}
	for _, code := range slices.Sorted(maps.Keys(metroNames)) {
		name := metroNames[code]
		id := domain.MetroUnitID(code)
		members := metroMembers[code]
		units[id] = domain.GeographicUnit{
			ID:         id,
			Kind:       domain.KindMetro,
			StateCode:  domain.MetroStateCode,
			CountyCode: code,
			Name:       name,
			LongName:   name + " --- DMA (not a real FIPS)",
			Metro:      code,
			MetroName:  name,
			Members:    members,
		}
		report.Metros++
	}

	list := make([]domain.GeographicUnit, 0, len(units))
	for _, id := range slices.Sorted(maps.Keys(units)) {
		list = append(list, units[id])
	}
	reg, err := New(list)
	if err != nil {
		return nil, report, fmt.Errorf("index registry: %w", err)
	}

	logger.Info("registry built",
		"units", reg.Len(),
		"counties", report.Counties,
		"states", report.States,
		"metros", report.Metros,
		"synthetic", report.Synthetic,
		"missing_state", len(report.MissingState),
		"missing_metro", len(report.MissingMetro),
	)
	return reg, report, nil
}
