package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/tankctl/internal/logger"
)

// ensureSchema leaves db at SchemaVersion. A database at any other
// version is copied to backups/ next to it and rebuilt empty; the history
// is a rolling window, so old rows are not carried over.
func ensureSchema(ctx context.Context, db *sql.DB, dbPath string, log logger.Logger) error {
	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	switch version {
	case SchemaVersion:
		log.Debug().Int("version", version).Msg("History schema up to date")
		return nil
	case 0:
		return createSchema(ctx, db, log)
	}

	log.Warn().
		Int("found", version).
		Int("want", SchemaVersion).
		Msg("History schema version mismatch, rebuilding")

	if _, err := snapshot(ctx, db, dbPath, version, log); err != nil {
		return err
	}
	if err := dropSchema(ctx, db, log); err != nil {
		return err
	}
	return createSchema(ctx, db, log)
}

// snapshot copies the database with VACUUM INTO, which must run outside a
// transaction.
func snapshot(ctx context.Context, db *sql.DB, dbPath string, version int, log logger.Logger) (string, error) {
	dir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", failed(ErrSchemaMigrationFailed, "backup_dir", dir, err)
	}

	name := fmt.Sprintf("history_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	dest := filepath.Join(dir, name)

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", failed(ErrSchemaMigrationFailed, "backup", dest, err)
	}

	log.Info().Str("path", dest).Int("version", version).Msg("History backup written")
	return dest, nil
}

func dropSchema(ctx context.Context, db *sql.DB, log logger.Logger) error {
	return inTx(ctx, db, log, ErrSchemaMigrationFailed, func(tx *sql.Tx) error {
		for _, table := range schemaTables {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return failed(ErrSchemaMigrationFailed, "drop_table", table, err)
			}
		}
		return nil
	})
}
