package history_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/history"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/tank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// flakyRepository wraps the memory tier and fails once armed.
type flakyRepository struct {
	history.Repository
	failAppend bool
	failQuery  bool
	closed     bool
}

func (f *flakyRepository) Append(ctx context.Context, r tank.Reading) error {
	if f.failAppend {
		return stderrors.New("disk I/O error")
	}
	return f.Repository.Append(ctx, r)
}

func (f *flakyRepository) QueryRecent(ctx context.Context, limit int) ([]tank.Reading, error) {
	if f.failQuery {
		return nil, stderrors.New("database is locked")
	}
	return f.Repository.QueryRecent(ctx, limit)
}

func (f *flakyRepository) Close() error {
	f.closed = true
	return nil
}

// stallingRepository blocks every call until its context ends.
type stallingRepository struct {
	history.Repository
	closed bool
}

func (r *stallingRepository) QueryRecent(ctx context.Context, _ int) ([]tank.Reading, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *stallingRepository) Close() error {
	r.closed = true
	return nil
}

func volatileConfig(capacity int) history.Config {
	return history.Config{
		Capacity:         capacity,
		VolatileCapacity: capacity,
		Serve:            capacity,
	}
}

func TestStoreCapacityAndOrder(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	s := history.NewStore(nil, volatileConfig(500), clk, logger.Nop())

	for i := 0; i < 600; i++ {
		clk.Advance(time.Second)
		s.Append(ctx, float64(100-i%100), float64(i%100))
	}

	got := s.Served(ctx)
	require.Len(t, got, 500)
	assert.Equal(t, epoch.Add(101*time.Second), got[0].Timestamp, "oldest 100 evicted")
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Timestamp.Before(got[i].Timestamp))
	}
}

func TestStoreRecentIsChronological(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	s := history.NewStore(nil, volatileConfig(50), clk, logger.Nop())

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		s.Append(ctx, 0, float64(i))
	}

	got := s.Recent(ctx, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{got[0].Percentage, got[1].Percentage, got[2].Percentage})
}

func TestStoreAppendStampsWithClock(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := history.NewStore(nil, volatileConfig(5), clk, logger.Nop())

	r := s.Append(context.Background(), 40, 60)
	assert.Equal(t, tank.Reading{Level: 40, Percentage: 60, Timestamp: epoch}, r)
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := history.NewStore(nil, volatileConfig(5), clock.NewFake(epoch), logger.Nop())
	s.Append(ctx, 1, 99)
	s.Clear(ctx)

	assert.Empty(t, s.Served(ctx))
	assert.NotNil(t, s.Served(ctx))
}

func TestStoreDegradesOnAppendFailure(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	repo := &flakyRepository{Repository: history.NewMemoryRepository(500)}
	s := history.NewStore(repo, history.Config{Capacity: 500, VolatileCapacity: 50, Serve: 50}, clk, logger.Nop())

	s.Append(ctx, 90, 10)
	require.True(t, s.Durable())

	repo.failAppend = true
	clk.Advance(time.Second)
	r := s.Append(ctx, 80, 20)

	assert.Equal(t, 20.0, r.Percentage)
	assert.False(t, s.Durable())
	assert.True(t, repo.closed)

	got := s.Served(ctx)
	require.Len(t, got, 2, "volatile tier mirrored the durable writes")
	assert.Equal(t, 10.0, got[0].Percentage)
	assert.Equal(t, 20.0, got[1].Percentage)
}

func TestStoreDegradationIsPermanent(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepository{Repository: history.NewMemoryRepository(500), failQuery: true}
	s := history.NewStore(repo, volatileConfig(50), clock.NewFake(epoch), logger.Nop())

	s.Append(ctx, 50, 50)
	assert.Len(t, s.Served(ctx), 1)
	assert.False(t, s.Durable())

	repo.failQuery = false
	s.Append(ctx, 40, 60)
	assert.False(t, s.Durable(), "no re-promotion")
}

func TestStoreDegradesWhenDurableCallTimesOut(t *testing.T) {
	repo := &stallingRepository{Repository: history.NewMemoryRepository(500)}
	cfg := volatileConfig(50)
	cfg.OpTimeout = 20 * time.Millisecond
	s := history.NewStore(repo, cfg, clock.NewFake(epoch), logger.Nop())

	s.Append(context.Background(), 50, 50)
	require.True(t, s.Durable())

	got := s.Served(context.Background())
	assert.Len(t, got, 1, "served from memory")
	assert.False(t, s.Durable())
	assert.True(t, repo.closed)
}

func TestOpenWithDurableDisabled(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Enabled = false

	s := history.Open(context.Background(), cfg, clock.NewFake(epoch), logger.Nop())
	assert.False(t, s.Durable())
	require.NoError(t, s.Close())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, history.DefaultConfig().Validate())

	cfg := history.DefaultConfig()
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())

	cfg.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg.Serve = 0
	assert.Error(t, cfg.Validate())
}
