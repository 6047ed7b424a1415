package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Migrator applies the SQL files under a migrations directory in version
// order. Files follow the golang-migrate convention,
// {version}_{name}.up.sql with a matching .down.sql, and applied versions
// are recorded in public.schema_migrations so reruns are no-ops.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, dir string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, dir: dir, log: log}
}

// Up brings the schema to the newest version, applying each pending
// up-migration in its own transaction. A failure leaves every earlier
// migration committed and the failing one rolled back.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}

	pending, err := m.upFiles()
	if err != nil {
		return fmt.Errorf("scan %s: %w", m.dir, err)
	}

	for _, name := range pending {
		version := versionOf(name)
		if applied[version] {
			continue
		}
		record := `INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`
		if err := m.runFile(ctx, name, record, version, name); err != nil {
			return err
		}
		m.log.Info().Str("migration", name).Msg("migration applied")
	}
	return nil
}

// Down undoes the most recently applied migration using its .down.sql
// counterpart. One step at a time; run it again to go further back.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var version, upName string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &upName)
	if errors.Is(err, sql.ErrNoRows) {
		m.log.Info().Msg("schema already at baseline, nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read newest version: %w", err)
	}

	downName := strings.Replace(upName, ".up.sql", ".down.sql", 1)
	unrecord := `DELETE FROM public.schema_migrations WHERE version = $1`
	if err := m.runFile(ctx, downName, unrecord, version); err != nil {
		return err
	}
	m.log.Info().Str("migration", downName).Msg("migration rolled back")
	return nil
}

// runFile executes one migration file plus its bookkeeping statement in
// a single transaction, so the schema change and the version record can
// never disagree.
func (m *Migrator) runFile(ctx context.Context, name, bookkeeping string, args ...any) error {
	body, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// upFiles lists the *.up.sql files sorted by name, which sorts by
// version for zero-padded golang-migrate prefixes.
func (m *Migrator) upFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func versionOf(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}
