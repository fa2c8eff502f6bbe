package csvfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
)

var registryHeader = []string{
	"fips_state", "fips_county", "fips", "county_type", "state", "stateabb",
	"county", "countylong", "dma", "dmaname", "members",
}

// RegistryFile persists the registry as one flat CSV row per unit.
// It implements registry.Store.
type RegistryFile struct {
	Path string
}

// SaveRegistry writes every unit in identifier order. Members are space separated.
func (f RegistryFile) SaveRegistry(ctx context.Context, reg *registry.Registry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	units := reg.Units()
	rows := make([][]string, 0, len(units))
	for _, u := range units {
		dma := ""
		if u.HasMetro() {
			dma = strconv.Itoa(u.Metro)
		}
		members := make([]string, len(u.Members))
		for i, m := range u.Members {
			members[i] = strconv.Itoa(int(m))
		}
		rows = append(rows, []string{
			strconv.Itoa(u.StateCode),
			strconv.Itoa(u.CountyCode),
			strconv.Itoa(int(u.ID)),
			string(u.Kind),
			u.State,
			u.StateAbbr,
			u.Name,
			u.LongName,
			dma,
			u.MetroName,
			strings.Join(members, " "),
		})
	}
	return writeCSV(f.Path, registryHeader, rows)
}

// LoadRegistry reads a file written by SaveRegistry. A missing file wraps fs.ErrNotExist.
func (f RegistryFile) LoadRegistry(ctx context.Context) (*registry.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(f.Path, registryHeader...)
	if err != nil {
		return nil, err
	}
	units := make([]domain.GeographicUnit, 0, len(t.rows))
	for i, row := range t.rows {
		u, err := parseUnit(t, row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Path, i+2, err)
		}
		units = append(units, u)
	}
	reg, err := registry.New(units)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}

func parseUnit(t *table, row []string) (domain.GeographicUnit, error) {
	var u domain.GeographicUnit
	id, err := parseInt(t.get(row, "fips"))
	if err != nil {
		return u, err
	}
	state, err := parseInt(t.get(row, "fips_state"))
	if err != nil {
		return u, err
	}
	county, err := parseInt(t.get(row, "fips_county"))
	if err != nil {
		return u, err
	}
	kind, err := domain.ParseUnitKind(t.get(row, "county_type"))
	if err != nil {
		return u, err
	}
	u = domain.GeographicUnit{
		ID:         domain.UnitID(id),
		Kind:       kind,
		StateCode:  int(state),
		CountyCode: int(county),
		Name:       t.get(row, "county"),
		LongName:   t.get(row, "countylong"),
		State:      t.get(row, "state"),
		StateAbbr:  t.get(row, "stateabb"),
		Metro:      domain.NoMetro,
		MetroName:  t.get(row, "dmaname"),
	}
	if s := t.get(row, "dma"); s != "" {
		m, err := parseInt(s)
		if err != nil {
			return u, fmt.Errorf("dma: %w", err)
		}
		u.Metro = int(m)
	}
	for _, s := range strings.Fields(t.get(row, "members")) {
		m, err := parseInt(s)
		if err != nil {
			return u, fmt.Errorf("members: %w", err)
		}
		u.Members = append(u.Members, domain.UnitID(m))
	}
	return u, nil
}
