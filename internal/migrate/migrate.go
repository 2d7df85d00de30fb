// Package migrate applies versioned SQL files to the registry database.
// Migrations are pairs of NNNN_name.up.sql / NNNN_name.down.sql applied
// in lexical order; seed files are plain .sql applied once each.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Runner applies migrations from a filesystem to a database.
type Runner struct {
	db         *sql.DB
	migrations fs.FS
	seeds      fs.FS
}

// NewRunner builds a Runner. seeds may be nil when no seed data exists.
func NewRunner(db *sql.DB, migrations, seeds fs.FS) *Runner {
	return &Runner{db: db, migrations: migrations, seeds: seeds}
}

// Migration pairs a version name with its applied state.
type Migration struct {
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Up applies every pending migration in order.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureTables(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedSet(ctx, migrationsTable)
	if err != nil {
		return 0, err
	}
	names, err := listFiles(r.migrations, upSuffix)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.apply(ctx, r.migrations, name, migrationsTable); err != nil {
			return count, fmt.Errorf("migration %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return "", err
	}
	history, err := r.appliedOrdered(ctx, migrationsTable)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("nothing to roll back")
	}
	last := history[len(history)-1].Name
	downName := strings.TrimSuffix(last, upSuffix) + downSuffix
	if _, err := fs.Stat(r.migrations, downName); err != nil {
		return "", fmt.Errorf("no down file for %s", last)
	}
	if err := r.execFile(ctx, r.migrations, downName); err != nil {
		return "", fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
	if err != nil {
		return "", err
	}
	return last, nil
}

// Status lists every known migration with its applied state, pending
// files included.
func (r *Runner) Status(ctx context.Context) ([]Migration, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	history, err := r.appliedOrdered(ctx, migrationsTable)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Migration, len(history))
	for _, m := range history {
		byName[m.Name] = m
	}
	names, err := listFiles(r.migrations, upSuffix)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		if m, ok := byName[name]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, Migration{Name: name})
	}
	return out, nil
}

// Seed applies each seed file once.
func (r *Runner) Seed(ctx context.Context) (int, error) {
	if r.seeds == nil {
		return 0, nil
	}
	if err := r.ensureTables(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedSet(ctx, seedsTable)
	if err != nil {
		return 0, err
	}
	names, err := listFiles(r.seeds, ".sql")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.apply(ctx, r.seeds, name, seedsTable); err != nil {
			return count, fmt.Errorf("seed %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			);`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, fsys fs.FS, name, table string) error {
	if err := r.execFile(ctx, fsys, name); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

// execFile runs every statement in the file inside one transaction.
func (r *Runner) execFile(ctx context.Context, fsys fs.FS, name string) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set[name] = true
	}
	return set, rows.Err()
}

func (r *Runner) appliedOrdered(ctx context.Context, table string) ([]Migration, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name, applied_at from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Migration
	for rows.Next() {
		m := Migration{Applied: true}
		if err := rows.Scan(&m.Name, &m.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func listFiles(fsys fs.FS, suffix string) ([]string, error) {
	if fsys == nil {
		return nil, nil
	}
	var names []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements breaks a script into statements on semicolons,
// ignoring semicolons inside single-quoted strings.
func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range script {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
