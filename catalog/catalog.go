package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("catalog: build not found")

// Catalog records voxel builds and the outcome of their region exports in a
// sqlite file.
type Catalog struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the catalog at path and migrates it to the latest
// schema.
func Open(path string, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	c := &Catalog{db: db, log: log}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{c.log.Sugar()}
	return m, nil
}

// The migrate instance is not closed: closing it closes the shared *sql.DB.
func (c *Catalog) migrateUp() error {
	m, err := c.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version and its dirty state.
func (c *Catalog) Version() (uint, bool, error) {
	m, err := c.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct {
	log *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("[migrate] "+strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return false
}

// Region is the recorded outcome of one exported region.
type Region struct {
	Index       int
	Cells       int
	TotalSpans  int
	MergedSpans int
	Dropped     int
	// Err is empty when the region was written.
	Err string
}

type Build struct {
	ID                 uuid.UUID
	MapID              int
	Width              int
	Height             int
	Spans              int
	WalkableSpans      int
	ClosedSpaceDemoted int
	Duration           time.Duration
	// ServerEntries is -1 until a server mask is recorded.
	ServerEntries   int
	ManifestWritten bool
	Regions         []Region
}

// RecordBuild stores b and its regions in one transaction.
func (c *Catalog) RecordBuild(ctx context.Context, b Build) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var serverEntries sql.NullInt64
	if b.ServerEntries >= 0 {
		serverEntries = sql.NullInt64{Int64: int64(b.ServerEntries), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (build_id, map_id, width, height, spans, walkable_spans,
			closed_space_demoted, duration_ms, server_entries, manifest_written)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.MapID, b.Width, b.Height, b.Spans, b.WalkableSpans,
		b.ClosedSpaceDemoted, b.Duration.Milliseconds(), serverEntries, b.ManifestWritten)
	if err != nil {
		return fmt.Errorf("insert build %s: %w", b.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO regions (build_id, region_index, cells, total_spans, merged_spans, dropped_spans, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range b.Regions {
		var regionErr sql.NullString
		if r.Err != "" {
			regionErr = sql.NullString{String: r.Err, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, b.ID.String(), r.Index, r.Cells, r.TotalSpans, r.MergedSpans, r.Dropped, regionErr); err != nil {
			return fmt.Errorf("insert region %d of build %s: %w", r.Index, b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Debug("recorded build", zap.Stringer("build_id", b.ID), zap.Int("regions", len(b.Regions)))
	return nil
}

// SetServerEntries records the entry count of the server mask written for a
// build.
func (c *Catalog) SetServerEntries(ctx context.Context, id uuid.UUID, entries int) error {
	res, err := c.db.ExecContext(ctx, "UPDATE builds SET server_entries = ? WHERE build_id = ?", entries, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const buildColumns = `build_id, map_id, width, height, spans, walkable_spans,
	closed_space_demoted, duration_ms, server_entries, manifest_written`

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (Build, error) {
	var (
		b             Build
		id            string
		durationMS    int64
		serverEntries sql.NullInt64
	)
	err := row.Scan(&id, &b.MapID, &b.Width, &b.Height, &b.Spans, &b.WalkableSpans,
		&b.ClosedSpaceDemoted, &durationMS, &serverEntries, &b.ManifestWritten)
	if err != nil {
		return b, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return b, fmt.Errorf("build id %q: %w", id, err)
	}
	b.Duration = time.Duration(durationMS) * time.Millisecond
	b.ServerEntries = -1
	if serverEntries.Valid {
		b.ServerEntries = int(serverEntries.Int64)
	}
	return b, nil
}

// Build loads one build with its regions, ordered by index.
func (c *Catalog) Build(ctx context.Context, id uuid.UUID) (*Build, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+buildColumns+" FROM builds WHERE build_id = ?", id.String())
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT region_index, cells, total_spans, merged_spans, dropped_spans, error
		FROM regions WHERE build_id = ? ORDER BY region_index`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r       Region
			errText sql.NullString
		)
		if err := rows.Scan(&r.Index, &r.Cells, &r.TotalSpans, &r.MergedSpans, &r.Dropped, &errText); err != nil {
			return nil, err
		}
		r.Err = errText.String
		b.Regions = append(b.Regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Builds lists the builds of a map, oldest first, without their regions.
func (c *Catalog) Builds(ctx context.Context, mapID int) ([]Build, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT "+buildColumns+" FROM builds WHERE map_id = ? ORDER BY rowid", mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}
