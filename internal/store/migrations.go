package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion tracks the database schema version
const CurrentSchemaVersion = "1.1.0"

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
}

// AllMigrations contains all database migrations in ascending version order
var AllMigrations = []Migration{
	{Version: "1.0.0", Up: migrationV1Up},
	{Version: "1.1.0", Up: migrationV1_1Up},
}

const migrationV1Up = `
-- Projects table: one row per tracked project, nested sequences and maps
-- stored as JSON text columns
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    current_goal TEXT NOT NULL DEFAULT '',
    completed_features TEXT NOT NULL DEFAULT '[]',
    current_issues TEXT NOT NULL DEFAULT '[]',
    next_steps TEXT NOT NULL DEFAULT '[]',
    current_state TEXT NOT NULL DEFAULT '{}',
    context_anchors TEXT NOT NULL DEFAULT '[]',
    conversation_history TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name);
CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at);
`

const migrationV1_1Up = `
-- Key files tracked per project
ALTER TABLE projects ADD COLUMN key_files TEXT NOT NULL DEFAULT '[]';
`

// ApplyMigrations brings the database schema up to CurrentSchemaVersion,
// applying every migration whose version is newer than the latest one
// recorded in schema_version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	applied, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		version, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !applied.LessThan(version) {
			continue // Already applied
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		applied = version
	}
	return nil
}

// appliedVersion returns the newest schema version recorded so far, or
// 0.0.0 for a fresh database. Versions are compared as semver, not
// lexically, so 1.10.0 correctly sorts after 1.9.0.
func appliedVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	newest := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan schema version: %w", err)
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded schema version %s: %w", raw, err)
		}
		if newest.LessThan(v) {
			newest = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	return newest, nil
}
