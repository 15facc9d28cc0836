// Package migrate applies the auth schema migrations shipped with the
// binary.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

const migrationsTable = "schema_migrations"

// Manager executes SQL migrations from a file system, typically
// os.DirFS over ops/migrations/sql.
type Manager struct {
	db    *sql.DB
	files fs.FS
}

// NewManager constructs a Manager over the given migration sources.
func NewManager(db *sql.DB, files fs.FS) *Manager {
	return &Manager{db: db, files: files}
}

// Up applies all pending .up.sql files in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	return m.apply(ctx, ".up.sql", false)
}

// Down reverts applied migrations in reverse lexical order.
func (m *Manager) Down(ctx context.Context) error {
	return m.apply(ctx, ".down.sql", true)
}

// Status returns migration base names mapped to whether they have run.
func (m *Manager) Status(ctx context.Context) (map[string]bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return nil, err
	}
	names, err := m.collect(".up.sql")
	if err != nil {
		return nil, err
	}
	status := make(map[string]bool, len(names))
	for _, name := range names {
		status[baseName(name)] = executed[baseName(name)]
	}
	return status, nil
}

func (m *Manager) apply(ctx context.Context, suffix string, reverse bool) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return err
	}
	names, err := m.collect(suffix)
	if err != nil {
		return err
	}
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}
	for _, name := range names {
		base := baseName(name)
		applied := executed[base]
		if reverse && !applied {
			continue
		}
		if !reverse && applied {
			continue
		}
		raw, err := fs.ReadFile(m.files, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(raw)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if reverse {
			_, err = tx.ExecContext(ctx, `delete from `+migrationsTable+` where name = $1`, base)
		} else {
			_, err = tx.ExecContext(ctx, `insert into `+migrationsTable+` (name) values ($1)`, base)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		create table if not exists `+migrationsTable+` (
			name       text primary key,
			applied_at timestamptz not null default now()
		)
	`)
	return err
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `select name from `+migrationsTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executed := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		executed[name] = true
	}
	return executed, rows.Err()
}

func (m *Manager) collect(suffix string) ([]string, error) {
	var names []string
	err := fs.WalkDir(m.files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, suffix) {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func baseName(path string) string {
	base := path[strings.LastIndexByte(path, '/')+1:]
	base = strings.TrimSuffix(base, ".up.sql")
	return strings.TrimSuffix(base, ".down.sql")
}
