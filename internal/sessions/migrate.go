package sessions

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is one registered schema step, identified by a monotonically
// increasing integer version.
type migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

// migrator applies the engine's registered migrations against db's
// schema_version table, per spec §4.3: one transaction per step, and an
// error if the persisted version is newer than any migration this build
// knows about.
type migrator struct {
	db         *sql.DB
	migrations []migration
}

func newMigrator(db *sql.DB) (*migrator, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	return &migrator{db: db, migrations: migrations}, nil
}

func (m *migrator) currentCodeVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Up ensures schema_version exists, then applies any migration whose
// version exceeds the persisted one, ascending, each in its own
// transaction. Returns an error if the persisted version is ahead of
// every migration this build knows about.
func (m *migrator) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("sessions: create schema_version: %w", err)
	}

	persisted, err := m.readVersion(ctx)
	if err != nil {
		return err
	}
	if persisted > m.currentCodeVersion() {
		return fmt.Errorf("sessions: database schema version %d is newer than this build supports (%d)", persisted, m.currentCodeVersion())
	}

	for _, mig := range m.migrations {
		if mig.Version <= persisted {
			continue
		}
		if err := m.applyStep(ctx, mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *migrator) applyStep(ctx context.Context, mig migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessions: begin migration %d: %w", mig.Version, err)
	}
	for _, stmt := range splitStatements(mig.UpSQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sessions: apply migration %d: %w", mig.Version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: clear schema_version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, mig.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sessions: record schema_version %d: %w", mig.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sessions: commit migration %d: %w", mig.Version, err)
	}
	return nil
}

func (m *migrator) readVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sessions: read schema_version: %w", err)
	}
	return version, nil
}

// splitStatements splits a migration file on statement-terminating
// semicolons. sqlite's driver executes one statement per ExecContext
// call, so a migration file containing multiple CREATE/INDEX statements
// must be split.
func splitStatements(sqlText string) []string {
	parts := strings.Split(sqlText, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loadMigrations() ([]migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("sessions: list migrations: %w", err)
	}

	entries := map[int]*migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, "migrations/")
		var suffix string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		name := strings.TrimSuffix(base, suffix)
		versionStr := name
		if idx := strings.Index(name, "_"); idx >= 0 {
			versionStr = name[:idx]
		}
		version, err := strconv.Atoi(versionStr)
		if err != nil {
			return nil, fmt.Errorf("sessions: migration file %q has no numeric version prefix: %w", path, err)
		}

		entry := entries[version]
		if entry == nil {
			entry = &migration{Version: version}
			entries[version] = entry
		}
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sessions: read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.UpSQL = string(data)
		} else {
			entry.DownSQL = string(data)
		}
	}

	versions := make([]int, 0, len(entries))
	for v := range entries {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	out := make([]migration, 0, len(versions))
	for _, v := range versions {
		out = append(out, *entries[v])
	}
	return out, nil
}
