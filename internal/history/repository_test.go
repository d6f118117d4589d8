package history_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/history"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T, capacity int) history.Config {
	t.Helper()
	cfg := history.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")
	cfg.Capacity = capacity
	return cfg
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := history.NewSQLiteRepository(ctx, sqliteConfig(t, 10), logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	for i := 0; i < 3; i++ {
		r := tank.NewReading(float64(90-i), float64(10+i), epoch.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Append(ctx, r))
	}

	got, err := repo.QueryRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 12.0, got[0].Percentage, "newest first")
	assert.Equal(t, 11.0, got[1].Percentage)
	assert.True(t, got[0].Timestamp.Equal(epoch.Add(2*time.Second)))
}

func TestSQLiteRepositoryPrunesToCapacity(t *testing.T) {
	ctx := context.Background()
	repo, err := history.NewSQLiteRepository(ctx, sqliteConfig(t, 5), logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	for i := 0; i < 8; i++ {
		require.NoError(t, repo.Append(ctx, tank.NewReading(0, float64(i), epoch)))
	}

	got, err := repo.QueryRecent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 7.0, got[0].Percentage)
	assert.Equal(t, 3.0, got[4].Percentage)
}

func TestSQLiteRepositoryClear(t *testing.T) {
	ctx := context.Background()
	repo, err := history.NewSQLiteRepository(ctx, sqliteConfig(t, 5), logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Append(ctx, tank.NewReading(0, 100, epoch)))
	require.NoError(t, repo.Clear(ctx))

	got, err := repo.QueryRecent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteRepositoryReopenKeepsReadings(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t, 5)

	repo, err := history.NewSQLiteRepository(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, tank.NewReading(30, 70, epoch)))
	require.NoError(t, repo.Close())

	repo, err = history.NewSQLiteRepository(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.QueryRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 70.0, got[0].Percentage)
}

func TestOpenFallsBackWhenDatabaseUnusable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := history.DefaultConfig()
	cfg.DBPath = filepath.Join(blocker, "history.db")

	s := history.Open(context.Background(), cfg, clock.NewFake(epoch), logger.Nop())
	assert.False(t, s.Durable())

	s.Append(context.Background(), 10, 90)
	assert.Len(t, s.Served(context.Background()), 1)
}

func TestOpenUsesDurableTier(t *testing.T) {
	ctx := context.Background()
	s := history.Open(ctx, sqliteConfig(t, 500), clock.NewFake(epoch), logger.Nop())
	defer s.Close()

	require.True(t, s.Durable())
	s.Append(ctx, 60, 40)
	got := s.Served(ctx)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(epoch))
}

func TestCancelledCallerKeepsDurableTier(t *testing.T) {
	s := history.Open(context.Background(), sqliteConfig(t, 500), clock.NewFake(epoch), logger.Nop())
	defer s.Close()
	require.True(t, s.Durable())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Append(ctx, 60, 40)
	assert.True(t, s.Durable(), "append")

	got := s.Served(ctx)
	assert.True(t, s.Durable(), "query")
	require.Len(t, got, 1)
	assert.Equal(t, 40.0, got[0].Percentage)

	s.Clear(ctx)
	assert.True(t, s.Durable(), "clear")
	assert.Empty(t, s.Served(context.Background()))
}

func TestSQLiteRepositoryRebuildsOutdatedSchema(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t, 10)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
INSERT INTO schema_versions VALUES (0, 'then');
INSERT INTO schema_versions VALUES (7, 'later');
CREATE TABLE readings (value REAL);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := history.NewSQLiteRepository(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Append(ctx, tank.NewReading(50, 50, epoch)))
	got, err := repo.QueryRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "history_v7_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
