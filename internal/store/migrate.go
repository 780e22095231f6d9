package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
)

//go:embed migrations/*/*.sql
var migrationFS embed.FS

const (
	migrationTable  = "schema_migrations"
	markerUp        = "-- +migrate Up"
	markerDown      = "-- +migrate Down"
	colMigrationKey = "name"
	colAppliedAt    = "applied_at"
)

type migration struct {
	name string
	up   string
	down string
}

func (s *Store) migrationDir() string {
	if s.driver == DriverPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func (s *Store) loadMigrations() ([]migration, error) {
	dir := s.migrationDir()
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(migrationFS, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		up, down := splitMigration(string(content))
		migrations = append(migrations, migration{name: name, up: up, down: down})
	}
	return migrations, nil
}

// splitMigration returns the Up and Down sections of a migration file.
// A file without markers is all Up.
func splitMigration(content string) (string, string) {
	upIdx := strings.Index(content, markerUp)
	if upIdx == -1 {
		return content, ""
	}
	downIdx := strings.Index(content, markerDown)
	if downIdx == -1 {
		return content[upIdx+len(markerUp):], ""
	}
	return content[upIdx+len(markerUp) : downIdx], content[downIdx+len(markerDown):]
}

// migrate applies every embedded migration at most once.
func (s *Store) migrate(ctx context.Context) error {
	migrations, err := s.loadMigrations()
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s TEXT PRIMARY KEY,
    %s BIGINT NOT NULL
)`, migrationTable, colMigrationKey, colAppliedAt)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		err := s.WithTx(ctx, func(tx *Tx) error {
			var found int
			err := tx.Get(ctx, &found, tx.From(migrationTable).
				Select(goqu.L("1")).
				Where(goqu.C(colMigrationKey).Eq(m.name)))
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrNoRows) {
				return fmt.Errorf("check migration %s: %w", m.name, err)
			}

			if strings.TrimSpace(m.up) != "" {
				if err := tx.execRaw(ctx, m.up); err != nil {
					return fmt.Errorf("exec migration %s: %w", m.name, err)
				}
			}

			_, err = tx.Exec(ctx, tx.Insert(migrationTable).Rows(goqu.Record{
				colMigrationKey: m.name,
				colAppliedAt:    time.Now().UTC().UnixMilli(),
			}))
			if err != nil {
				return fmt.Errorf("record migration %s: %w", m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Reset drops every inventory table and re-applies the migrations.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNilStore
	}

	migrations, err := s.loadMigrations()
	if err != nil {
		return err
	}

	err = s.WithTx(ctx, func(tx *Tx) error {
		for i := len(migrations) - 1; i >= 0; i-- {
			if strings.TrimSpace(migrations[i].down) == "" {
				continue
			}
			if err := tx.execRaw(ctx, migrations[i].down); err != nil {
				return fmt.Errorf("revert migration %s: %w", migrations[i].name, err)
			}
		}
		_, err := tx.Exec(ctx, tx.Delete(migrationTable))
		return err
	})
	if err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}

	return s.migrate(ctx)
}

func (t *Tx) execRaw(ctx context.Context, query string) error {
	ctx, span := t.start(ctx, "store.exec_raw", "migration")
	defer span.End()

	start := time.Now()
	_, err := t.tx.ExecContext(ctx, query)
	t.logQuery(ctx, "migrate", "migration", start)
	return t.fail(span, "exec raw", err)
}
