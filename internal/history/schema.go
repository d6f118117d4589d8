package history

import (
	"context"
	"database/sql"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/logger"
)

// SchemaVersion is bumped whenever the readings layout changes. Older
// databases are backed up and recreated, never migrated in place.
const SchemaVersion = 1

var schemaTables = []string{"readings", "schema_versions"}

const (
	createSchemaSQL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS readings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    level      REAL    NOT NULL CHECK (level >= 0),
    percentage REAL    NOT NULL CHECK (percentage BETWEEN 0 AND 100)
);
CREATE INDEX IF NOT EXISTS readings_timestamp ON readings (timestamp);`

	recordVersionSQL  = `INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`
	currentVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM schema_versions`
	tableExistsSQL    = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`

	insertReadingSQL = `INSERT INTO readings (timestamp, level, percentage) VALUES (?, ?, ?)`

	// Rows are pruned by insertion order so equal timestamps cannot
	// keep more than the configured window.
	pruneReadingsSQL = `DELETE FROM readings WHERE id NOT IN (SELECT id FROM readings ORDER BY id DESC LIMIT ?)`
	selectRecentSQL  = `SELECT timestamp, level, percentage FROM readings ORDER BY id DESC LIMIT ?`
	clearReadingsSQL = `DELETE FROM readings`
)

// stepError is attached to schema and storage errors to say which step
// failed and on what.
type stepError struct {
	Step   string
	Target string `json:",omitempty"`
	Cause  string
}

func failed(code errors.ErrorCode, step, target string, err error) errors.Error {
	return errors.New().WithData(code, stepError{Step: step, Target: target, Cause: err.Error()})
}

// inTx runs fn in a transaction, rolling back unless fn and the commit
// both succeed.
func inTx(ctx context.Context, db *sql.DB, log logger.Logger, code errors.ErrorCode, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New().Wrap(code, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(code, err)
	}
	return nil
}

func createSchema(ctx context.Context, db *sql.DB, log logger.Logger) error {
	err := inTx(ctx, db, log, ErrSchemaInitFailed, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createSchemaSQL); err != nil {
			return failed(ErrSchemaInitFailed, "create_tables", "", err)
		}
		if _, err := tx.ExecContext(ctx, recordVersionSQL, SchemaVersion); err != nil {
			return failed(ErrSchemaInitFailed, "record_version", "", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("History schema created")
	return nil
}

// schemaVersion reports the stored version, 0 for an empty database.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, tableExistsSQL, "schema_versions").Scan(&n); err != nil {
		return 0, failed(ErrSchemaValidationFailed, "lookup_table", "schema_versions", err)
	}
	if n == 0 {
		return 0, nil
	}

	var version int
	if err := db.QueryRowContext(ctx, currentVersionSQL).Scan(&version); err != nil {
		return 0, failed(ErrSchemaValidationFailed, "read_version", "schema_versions", err)
	}
	return version, nil
}
