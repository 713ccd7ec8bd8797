package session

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS import_sessions (
        id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        source_paths TEXT NOT NULL,
        archive_root TEXT NOT NULL,
        resumed INTEGER NOT NULL DEFAULT 0,
        snapshot_json TEXT,
        files_total INTEGER NOT NULL DEFAULT 0,
        files_processed INTEGER NOT NULL DEFAULT 0,
        bytes_total INTEGER NOT NULL DEFAULT 0,
        bytes_processed INTEGER NOT NULL DEFAULT 0,
        duplicates INTEGER NOT NULL DEFAULT 0,
        errors INTEGER NOT NULL DEFAULT 0,
        last_error TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        completed_at TEXT
    )`,
	`CREATE INDEX IF NOT EXISTS idx_import_sessions_status ON import_sessions(status)`,
	`CREATE TABLE IF NOT EXISTS catalog_files (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        filename TEXT NOT NULL,
        source_path TEXT NOT NULL,
        archive_path TEXT NOT NULL,
        hash TEXT NOT NULL,
        size INTEGER NOT NULL DEFAULT 0,
        media_type TEXT NOT NULL,
        imported_at TEXT NOT NULL
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_catalog_files_hash ON catalog_files(hash)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_files_session ON catalog_files(session_id)`,
}

func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("bump schema version: %w", err)
	}
	return nil
}
