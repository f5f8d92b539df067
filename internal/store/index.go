package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/001_resources.sql
var migrationResources string

// Index persists the entry registry in sqlite so resource metadata survives
// process restarts. The store is the source of truth at runtime; the index is
// written through under the store's lock and read once at startup.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the index database and runs migrations.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping index: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Index{db: db}, nil
}

// runMigrations applies the SQL schema
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", "001_resources").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := db.Exec(migrationResources); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	_, err = db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", "001_resources")
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return nil
}

// Load reads all persisted entries.
func (ix *Index) Load() ([]Entry, error) {
	rows, err := ix.db.Query(`
		SELECT rid, kind, mime, size, sha256, path, status, created_at
		FROM resources
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.RID, &e.Kind, &e.Mime, &e.Size, &e.SHA256, &e.Path, &status, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Upsert writes one entry.
func (ix *Index) Upsert(e Entry) error {
	_, err := ix.db.Exec(`
		INSERT INTO resources (rid, kind, mime, size, sha256, path, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rid) DO UPDATE SET
			kind = excluded.kind,
			mime = excluded.mime,
			size = excluded.size,
			sha256 = excluded.sha256,
			path = excluded.path,
			status = excluded.status,
			created_at = excluded.created_at
	`, e.RID, e.Kind, e.Mime, e.Size, e.SHA256, e.Path, string(e.Status), e.CreatedAt)
	return err
}

// Delete removes one entry.
func (ix *Index) Delete(rid string) error {
	_, err := ix.db.Exec("DELETE FROM resources WHERE rid = ?", rid)
	return err
}

// Close closes the database connection
func (ix *Index) Close() error {
	return ix.db.Close()
}
