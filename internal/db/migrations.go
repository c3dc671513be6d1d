package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the schema version this build writes
const SchemaVersion = 1

// RunMigrations executes all database migrations
func RunMigrations(ctx context.Context, db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var currentVersion int
	err = db.QueryRowContext(ctx, `
		SELECT MAX(version) FROM schema_version
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion < 1 || currentVersion > SchemaVersion {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(ctx context.Context, db *DB) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Schema version table
	if err := execSQL(ctx, tx, schemaVersionTable); err != nil {
		return err
	}

	// Certificates table
	if err := execSQL(ctx, tx, certificatesTable); err != nil {
		return err
	}
	if err := execSQL(ctx, tx, certificatesIndexes); err != nil {
		return err
	}

	// Insert initial schema version
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(ctx context.Context, tx *sql.Tx, query string) error {
	_, err := tx.ExecContext(ctx, query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    id              TEXT PRIMARY KEY,
    event_id        TEXT NOT NULL,
    student_id      TEXT NOT NULL,
    record_json     TEXT NOT NULL,
    signature       TEXT NOT NULL,
    content_digest  TEXT NOT NULL DEFAULT '',
    format_version  TEXT NOT NULL DEFAULT '',
    signed_at       DATETIME NOT NULL,
    issued_at       DATETIME,

    UNIQUE (event_id, student_id)
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_event_id ON certificates(event_id);
CREATE INDEX idx_certs_signed_at ON certificates(signed_at)`
)
