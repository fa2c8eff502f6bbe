// Package sqlite provides a SQLite-backed sink for the registry and daily tables.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/registry"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store persists the registry and daily rows in one SQLite database.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite database and creates the tables when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRegistry replaces the units table with the registry contents.
func (s *Store) SaveRegistry(ctx context.Context, reg *registry.Registry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM units`); err != nil {
			return fmt.Errorf("clear units: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO units (
		   fips, fips_state, fips_county, county_type, state, stateabb,
		   county, countylong, dma, dmaname, members
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare unit insert: %w", err)
		}
		defer stmt.Close()

		for _, u := range reg.Units() {
			var dma sql.NullInt64
			if u.HasMetro() {
				dma = sql.NullInt64{Int64: int64(u.Metro), Valid: true}
			}
			members := make([]string, len(u.Members))
			for i, m := range u.Members {
				members[i] = strconv.Itoa(int(m))
			}
			if _, err := stmt.ExecContext(ctx,
				int(u.ID), u.StateCode, u.CountyCode, string(u.Kind), u.State, u.StateAbbr,
				u.Name, u.LongName, dma, u.MetroName, strings.Join(members, " "),
			); err != nil {
				return fmt.Errorf("insert unit %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

// LoadRegistry rebuilds a registry from the units table.
func (s *Store) LoadRegistry(ctx context.Context) (*registry.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT
	   fips, fips_state, fips_county, county_type, state, stateabb,
	   county, countylong, dma, dmaname, members
	 FROM units ORDER BY fips`)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var units []domain.GeographicUnit
	for rows.Next() {
		var (
			u       domain.GeographicUnit
			id      int
			kind    string
			dma     sql.NullInt64
			members string
		)
		if err := rows.Scan(&id, &u.StateCode, &u.CountyCode, &kind, &u.State, &u.StateAbbr,
			&u.Name, &u.LongName, &dma, &u.MetroName, &members); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.ID = domain.UnitID(id)
		if u.Kind, err = domain.ParseUnitKind(kind); err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.ID, err)
		}
		u.Metro = domain.NoMetro
		if dma.Valid {
			u.Metro = int(dma.Int64)
		}
		for _, f := range strings.Fields(members) {
			m, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("unit %s members: %w", u.ID, err)
			}
			u.Members = append(u.Members, domain.UnitID(m))
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return registry.New(units)
}

// WriteDaily replaces the daily rows of one source and metric.
func (s *Store) WriteDaily(ctx context.Context, source domain.Source, metric domain.Metric, rows []domain.DailyRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily_counts WHERE source = ? AND metric = ?`,
			string(source), string(metric)); err != nil {
			return fmt.Errorf("clear daily counts: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_counts (
		   source, metric, date, fips, cum, daily
		 ) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare daily insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			var daily sql.NullInt64
			if r.HasDaily {
				daily = sql.NullInt64{Int64: r.Daily, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				string(source), string(metric), r.Date.Format(time.DateOnly), int(r.ID), r.Cumulative, daily,
			); err != nil {
				return fmt.Errorf("insert daily %s %s: %w", r.ID, r.Date.Format(time.DateOnly), err)
			}
		}
		return nil
	})
}

// LoadDaily returns the daily rows of one source and metric ordered by unit then date.
func (s *Store) LoadDaily(ctx context.Context, source domain.Source, metric domain.Metric) ([]domain.DailyRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT date, fips, cum, daily
	 FROM daily_counts WHERE source = ? AND metric = ?
	 ORDER BY fips, date`, string(source), string(metric))
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyRow
	for rows.Next() {
		var (
			day   string
			id    int
			daily sql.NullInt64
			r     = domain.DailyRow{Source: source, Metric: metric}
		)
		if err := rows.Scan(&day, &id, &r.Cumulative, &daily); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		if r.Date, err = time.Parse(time.DateOnly, day); err != nil {
			return nil, fmt.Errorf("daily count date: %w", err)
		}
		r.ID = domain.UnitID(id)
		r.Daily, r.HasDaily = daily.Int64, daily.Valid
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
