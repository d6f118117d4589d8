package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteRepository keeps the newest capacity readings in a sqlite file.
type sqliteRepository struct {
	mu       sync.Mutex
	db       *sql.DB
	capacity int
	log      logger.Logger
}

// NewSQLiteRepository opens (or creates) the durable reading tier.
func NewSQLiteRepository(ctx context.Context, cfg Config, log logger.Logger) (Repository, error) {
	if cfg.DBPath == "" {
		return nil, errors.New().New(ErrInvalidDBPath)
	}
	if log == nil {
		log = logger.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, failed(ErrStorageInit, "create_directory", cfg.DBPath, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_busy_timeout=1000")
	if err != nil {
		return nil, failed(ErrStorageInit, "open", cfg.DBPath, err)
	}
	// One connection: sqlite serializes writers and the store serializes us.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, failed(ErrStorageInit, "ping", cfg.DBPath, err)
	}

	if err := ensureSchema(ctx, db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errors.New().Wrap(ErrStorageInit, err)
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("capacity", capacity).
		Msg("Durable history ready")

	return &sqliteRepository{db: db, capacity: capacity, log: log}, nil
}

// Append inserts the reading and prunes past capacity in one transaction.
func (r *sqliteRepository) Append(ctx context.Context, reading tank.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return inTx(ctx, r.db, r.log, ErrTransactionFailed, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertReadingSQL,
			reading.Timestamp.UnixNano(), reading.Level, reading.Percentage,
		); err != nil {
			return errors.New().Wrap(ErrStorageAccess, err)
		}
		if _, err := tx.ExecContext(ctx, pruneReadingsSQL, r.capacity); err != nil {
			return errors.New().Wrap(ErrStorageAccess, err)
		}
		return nil
	})
}

// QueryRecent returns up to limit readings, newest first.
func (r *sqliteRepository) QueryRecent(ctx context.Context, limit int) ([]tank.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	if limit <= 0 || limit > r.capacity {
		limit = r.capacity
	}

	rows, err := r.db.QueryContext(ctx, selectRecentSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	readings := make([]tank.Reading, 0, limit)
	for rows.Next() {
		var (
			ns                int64
			level, percentage float64
		)
		if err := rows.Scan(&ns, &level, &percentage); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		readings = append(readings, tank.NewReading(level, percentage, time.Unix(0, ns).UTC()))
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return readings, nil
}

func (r *sqliteRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, clearReadingsSQL); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}
	return nil
}

// Close checkpoints the WAL so the database is a single file at rest.
func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.log.Debug().Err(err).Msg("WAL checkpoint failed")
	}

	if err := r.db.Close(); err != nil {
		return failed(ErrStorageClose, "close", "", err)
	}

	r.log.Info().Msg("Durable history closed")
	return nil
}
