package csvfile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
)

// ReferenceReader loads the county, state, and county-to-metro reference tables.
// It implements registry.ReferenceSource.
type ReferenceReader struct {
	CountyPath string
	StatePath  string
	MetroPath  string
	Logger     *slog.Logger // nil means slog.Default()
}

// LoadReference reads all three tables. A missing or malformed file is an error.
// Metro rows with a blank or invalid code are skipped with a warning, so their
// counties end up with no metro assignment.
func (r ReferenceReader) LoadReference(ctx context.Context) (registry.ReferenceData, error) {
	var ref registry.ReferenceData

	counties, err := readTable(r.CountyPath, "STATEFP", "COUNTYFP", "NAME", "NAMELSAD")
	if err != nil {
		return ref, err
	}
	for i, row := range counties.rows {
		state, err1 := parseInt(counties.get(row, "STATEFP"))
		county, err2 := parseInt(counties.get(row, "COUNTYFP"))
		if err1 != nil || err2 != nil {
			return ref, fmt.Errorf("%s line %d: invalid county code", r.CountyPath, i+2)
		}
		ref.Counties = append(ref.Counties, registry.CountyRecord{
			StateCode:  int(state),
			CountyCode: int(county),
			Name:       counties.get(row, "NAME"),
			LongName:   counties.get(row, "NAMELSAD"),
		})
	}
	if err := ctx.Err(); err != nil {
		return ref, err
	}

	states, err := readTable(r.StatePath, "fips", "name", "abb")
	if err != nil {
		return ref, err
	}
	for i, row := range states.rows {
		code, err := parseInt(states.get(row, "fips"))
		if err != nil {
			return ref, fmt.Errorf("%s line %d: %w", r.StatePath, i+2, err)
		}
		ref.States = append(ref.States, registry.StateRecord{
			Code: int(code),
			Name: states.get(row, "name"),
			Abbr: states.get(row, "abb"),
		})
	}
	if err := ctx.Err(); err != nil {
		return ref, err
	}

	metros, err := readTable(r.MetroPath, "STATEFP", "CNTYFP", "DMAINDEX", "shortDMA")
	if err != nil {
		return ref, err
	}
	for i, row := range metros.rows {
		state, err1 := parseInt(metros.get(row, "STATEFP"))
		county, err2 := parseInt(metros.get(row, "CNTYFP"))
		metro, err3 := parseInt(metros.get(row, "DMAINDEX"))
		if err1 != nil || err2 != nil || err3 != nil || metro <= 0 {
			r.logger().Warn("skipping metro reference row",
				"file", r.MetroPath, "line", i+2, "dma", metros.get(row, "DMAINDEX"),
				"error", domain.ErrMissingReferenceEntry)
			continue
		}
		ref.Metros = append(ref.Metros, registry.MetroRecord{
			StateCode:  int(state),
			CountyCode: int(county),
			Metro:      int(metro),
			MetroName:  metros.get(row, "shortDMA"),
		})
	}
	return ref, nil
}

func (r ReferenceReader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
