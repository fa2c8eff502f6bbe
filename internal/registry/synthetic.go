package registry

import (
	"fmt"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// Reserved county slots for synthetic units within a state block.
const (
	ReservedSlotMin = 900
	ReservedSlotMax = 906
)

// DefaultSynthetic is the hand-maintained list of units with no natural source
// identifier. Composite members are listed explicitly; the builder marks them
// part-of-composite.
var DefaultSynthetic = []domain.GeographicUnit{
	{
		ID: 36901, Kind: domain.KindComposite, StateCode: 36, CountyCode: 901,
		Name: "New York City", LongName: "New York City (not a real FIPS)",
		State: "New York", StateAbbr: "NY", Metro: 1, MetroName: "New York",
		Members: []domain.UnitID{36005, 36047, 36061, 36081, 36085},
	},
	{
		ID: 25901, Kind: domain.KindComposite, StateCode: 25, CountyCode: 901,
		Name: "Dukes and Nantucket", LongName: "Dukes and Nantucket Counties (not a real FIPS)",
		State: "Massachusetts", StateAbbr: "MA", Metro: 6, MetroName: "Boston",
		Members: []domain.UnitID{25007, 25019},
	},
	{
		ID: 2901, Kind: domain.KindComposite, StateCode: 2, CountyCode: 901,
		Name: "Bristol Bay plus Lake and Peninsula", LongName: "Bristol Bay plus Lake and Peninsula (not a real FIPS)",
		State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage",
		Members: []domain.UnitID{2060, 2164},
	},
	{
		ID: 2902, Kind: domain.KindComposite, StateCode: 2, CountyCode: 902,
		Name: "Yakutat plus Hoonah-Angoon", LongName: "Yakutat plus Hoonah-Angoon (not a real FIPS)",
		State: "Alaska", StateAbbr: "AK", Metro: 206, MetroName: "Juneau",
		Members: []domain.UnitID{2105, 2282},
	},
	{
		ID: 2063, Kind: domain.KindPartOfComposite, StateCode: 2, CountyCode: 63,
		Name: "Chugach", LongName: "Chugach Census Area",
		State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage",
	},
	{
		ID: 2066, Kind: domain.KindPartOfComposite, StateCode: 2, CountyCode: 66,
		Name: "Copper River", LongName: "Copper River Census Area",
		State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage",
	},
	{
		ID: 2903, Kind: domain.KindComposite, StateCode: 2, CountyCode: 903,
		Name: "Chugach plus Copper River", LongName: "Chugach plus Copper River (not a real FIPS, formerly Valdez-Cordova (261))",
		State: "Alaska", StateAbbr: "AK", Metro: 156, MetroName: "Anchorage",
		Members: []domain.UnitID{2063, 2066},
	},
	utahDistrict(49901, "HD Bear River", "Bear River Health District [3,5,33]", 49003, 49005, 49033),
	utahDistrict(49902, "HD Central", "Central Health District [23,27,31,39,41,55]", 49023, 49027, 49031, 49039, 49041, 49055),
	utahDistrict(49903, "HD Southeast", "Southeast Health District [7,15,19]", 49007, 49015, 49019),
	utahDistrict(49904, "HD Southwest", "Southwest Health District [1,17,21,25,53]", 49001, 49017, 49021, 49025, 49053),
	utahDistrict(49905, "HD TriCounty", "TriCounty Health District [9,13,47]", 49009, 49013, 49047),
	utahDistrict(49906, "HD Weber-Morgan", "Weber-Morgan Health District [29,57]", 49029, 49057),
	{
		ID: 26901, Kind: domain.KindOther, StateCode: 26, CountyCode: 901,
		Name: "MiDOC", LongName: "Michigan DOC Facilities (not a real FIPS)",
		State: "Michigan", StateAbbr: "MI", Metro: domain.NoMetro,
	},
	{
		ID: 26902, Kind: domain.KindOther, StateCode: 26, CountyCode: 902,
		Name: "MiFCI", LongName: "Michigan Federal Correctional Institution (not a real FIPS)",
		State: "Michigan", StateAbbr: "MI", Metro: domain.NoMetro,
	},
}

func utahDistrict(id domain.UnitID, name, long string, members ...domain.UnitID) domain.GeographicUnit {
	return domain.GeographicUnit{
		ID: id, Kind: domain.KindComposite, StateCode: 49, CountyCode: id.CountyCode(),
		Name: name, LongName: long + " (not a real FIPS)",
		State: "Utah", StateAbbr: "UT", Metro: 36, MetroName: "Salt Lake City",
		Members: members,
	}
}

// ValidateSynthetic checks a synthetic list for reserved-slot and membership errors.
// Composite and other units must sit in the reserved 900-906 slots of their state
// block, members must share the block, and no unit may belong to two composites.
func ValidateSynthetic(units []domain.GeographicUnit) error {
	seen := make(map[domain.UnitID]bool, len(units))
	owner := make(map[domain.UnitID]domain.UnitID)
	for _, u := range units {
		if seen[u.ID] {
			return fmt.Errorf("synthetic unit %s declared twice", u.ID)
		}
		seen[u.ID] = true

		if u.Kind == domain.KindComposite || u.Kind == domain.KindOther {
			slot := u.ID.CountyCode()
			if slot < ReservedSlotMin || slot > ReservedSlotMax {
				return fmt.Errorf("synthetic unit %s outside reserved slots %d-%d", u.ID, ReservedSlotMin, ReservedSlotMax)
			}
		}
		if u.ID.StateCode() != u.StateCode {
			return fmt.Errorf("synthetic unit %s declares state %d", u.ID, u.StateCode)
		}

		for _, m := range u.Members {
			if m.StateCode() != u.StateCode {
				return fmt.Errorf("synthetic unit %s member %s outside state block", u.ID, m)
			}
			if prev, ok := owner[m]; ok {
				return &domain.MembershipError{Unit: m, First: prev, Second: u.ID}
			}
			owner[m] = u.ID
		}
	}
	return nil
}
