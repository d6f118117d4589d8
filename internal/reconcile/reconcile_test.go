package reconcile_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"codeberg.org/mutker/tankctl/internal/clock"
	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/history"
	"codeberg.org/mutker/tankctl/internal/logger"
	"codeberg.org/mutker/tankctl/internal/reconcile"
	"codeberg.org/mutker/tankctl/internal/simulation"
	"codeberg.org/mutker/tankctl/internal/tank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	id     string
	events []event.Envelope
	fail   bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(e event.Envelope) error {
	if r.fail {
		return stderrors.New("connection closed")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) names() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

type fixture struct {
	rec   *reconcile.Reconciler
	clk   *clock.Fake
	store *history.Store
	obs   *recorder
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	clk := clock.NewFake(epoch)
	store := history.NewStore(nil, history.Config{
		Capacity:         capacity,
		VolatileCapacity: capacity,
		Serve:            capacity,
	}, clk, logger.Nop())
	rec := reconcile.New(reconcile.DefaultConfig(), store, clk, logger.Nop())

	obs := &recorder{id: "observer-1"}
	rec.Attach(context.Background(), obs)
	obs.reset()

	return &fixture{rec: rec, clk: clk, store: store, obs: obs}
}

// goStale seeds a real reading and moves past the staleness window.
func (f *fixture) goStale(percentage float64) {
	ctx := context.Background()
	f.rec.OnRealReading(ctx, tank.LevelFor(percentage, tank.DefaultCapacity), percentage)
	f.clk.Advance(simulation.DefaultStaleAfter + time.Millisecond)
	f.obs.reset()
}

func TestHistoryBoundedAndChronological(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 500)

	for i := 0; i < 600; i++ {
		f.clk.Advance(10 * time.Millisecond)
		f.rec.OnRealReading(ctx, 50, float64(i%100))
		require.LessOrEqual(t, len(f.rec.History(ctx)), 500)
	}

	got := f.rec.History(ctx)
	require.Len(t, got, 500)
	assert.Equal(t, epoch.Add(1010*time.Millisecond), got[0].Timestamp)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Timestamp.Before(got[i].Timestamp))
	}
}

func TestRealReadingBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	reading, motorOn := f.rec.OnRealReading(ctx, 60, 40)
	assert.False(t, motorOn)
	assert.Equal(t, epoch, reading.Timestamp)
	require.Equal(t, []string{event.NewReading}, f.obs.names())

	got, err := f.obs.events[0].DecodeReading()
	require.NoError(t, err)
	assert.Equal(t, reading, got)
}

func TestRealReadingAutoCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.rec.OnMotorCommand(ctx, true)
	f.obs.reset()

	_, motorOn := f.rec.OnRealReading(ctx, 0, 100)
	assert.False(t, motorOn)
	assert.Equal(t, []string{event.NewReading, event.MotorUpdate}, f.obs.names())

	on, err := f.obs.events[1].DecodeMotor()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestRealReadingFullWithMotorOffDoesNotBroadcastMotor(t *testing.T) {
	f := newFixture(t, 50)

	f.rec.OnRealReading(context.Background(), 0, 100)
	assert.Equal(t, []string{event.NewReading}, f.obs.names())
}

func TestMotorCommandAlwaysBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	assert.True(t, f.rec.OnMotorCommand(ctx, true))
	assert.True(t, f.rec.OnMotorCommand(ctx, true))
	assert.False(t, f.rec.OnMotorCommand(ctx, false))

	assert.Equal(t, []string{event.MotorUpdate, event.MotorUpdate, event.MotorUpdate}, f.obs.names())
	assert.False(t, f.rec.MotorOn())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.rec.OnMotorCommand(ctx, true)
	f.rec.OnRealReading(ctx, 30, 70)
	f.obs.reset()

	f.rec.OnReset(ctx)

	assert.False(t, f.rec.MotorOn())
	assert.Empty(t, f.rec.History(ctx))
	require.Equal(t, []string{event.MotorUpdate, event.NewReading, event.HistoryData}, f.obs.names())

	on, err := f.obs.events[0].DecodeMotor()
	require.NoError(t, err)
	assert.False(t, on)

	reading, err := f.obs.events[1].DecodeReading()
	require.NoError(t, err)
	assert.Equal(t, 0.0, reading.Percentage)
	assert.Equal(t, tank.DefaultCapacity, reading.Level)

	cleared, err := f.obs.events[2].DecodeHistory()
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestSimulatedTickSilentWhileRealDataFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.rec.OnMotorCommand(ctx, true)
	f.rec.OnRealReading(ctx, 90, 10)
	f.obs.reset()

	for elapsed := time.Duration(0); elapsed < simulation.DefaultStaleAfter; elapsed += simulation.DefaultTickInterval {
		assert.False(t, f.rec.OnSimulatedTick(ctx))
		f.clk.Advance(simulation.DefaultTickInterval)
	}
	assert.Empty(t, f.obs.events)
}

func TestSimulatedTickWithMotorOffHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.goStale(30)

	assert.False(t, f.rec.OnSimulatedTick(ctx))
	assert.Empty(t, f.obs.events)
}

func TestSimulatedTickAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.goStale(30)
	f.rec.OnMotorCommand(ctx, true)
	f.obs.reset()

	require.True(t, f.rec.OnSimulatedTick(ctx))
	require.Equal(t, []string{event.NewReading}, f.obs.names())

	r, err := f.obs.events[0].DecodeReading()
	require.NoError(t, err)
	assert.Equal(t, 32.0, r.Percentage)
	assert.Equal(t, 68.0, r.Level)

	history := f.rec.History(ctx)
	assert.Equal(t, 32.0, history[len(history)-1].Percentage)
}

func TestSimulationFillsToFullAndCutsOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.goStale(98)
	f.rec.OnMotorCommand(ctx, true)
	f.obs.reset()

	require.True(t, f.rec.OnSimulatedTick(ctx))
	require.Equal(t, []string{event.NewReading, event.MotorUpdate}, f.obs.names())

	r, err := f.obs.events[0].DecodeReading()
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.Percentage)
	assert.Equal(t, 0.0, r.Level)
	assert.False(t, f.rec.MotorOn())

	f.obs.reset()
	for i := 0; i < 10; i++ {
		f.clk.Advance(simulation.DefaultTickInterval)
		assert.False(t, f.rec.OnSimulatedTick(ctx))
	}
	assert.Empty(t, f.obs.events, "no simulated broadcast until a new operator command")
}

func TestSimulationClampFromNinetyNine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.goStale(99)
	f.rec.OnMotorCommand(ctx, true)
	f.obs.reset()

	cutoffs := 0
	for i := 0; i < 20; i++ {
		f.rec.OnSimulatedTick(ctx)
		f.clk.Advance(simulation.DefaultTickInterval)
	}
	for _, e := range f.obs.events {
		switch e.Event {
		case event.NewReading:
			r, err := e.DecodeReading()
			require.NoError(t, err)
			assert.LessOrEqual(t, r.Percentage, 100.0)
			assert.Equal(t, 100.0, r.Percentage)
		case event.MotorUpdate:
			cutoffs++
		}
	}
	assert.Equal(t, 1, cutoffs)
}

func TestOperatorRestartAfterCutoffEmitsHeldReading(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.goStale(98)
	f.rec.OnMotorCommand(ctx, true)
	f.rec.OnSimulatedTick(ctx)
	f.obs.reset()

	f.rec.OnMotorCommand(ctx, true)
	f.clk.Advance(simulation.DefaultTickInterval)
	require.True(t, f.rec.OnSimulatedTick(ctx))
	assert.Equal(t, []string{event.MotorUpdate, event.NewReading, event.MotorUpdate}, f.obs.names())
	assert.False(t, f.rec.MotorOn())
}

func TestAttachReplaysStateToNewObserverOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.rec.OnMotorCommand(ctx, true)
	f.clk.Advance(time.Second)
	f.rec.OnRealReading(ctx, 80, 20)
	f.clk.Advance(time.Second)
	f.rec.OnRealReading(ctx, 70, 30)
	f.obs.reset()

	late := &recorder{id: "observer-2"}
	detach := f.rec.Attach(ctx, late)
	defer detach()

	assert.Empty(t, f.obs.events)
	require.Equal(t, []string{event.MotorUpdate, event.HistoryData}, late.names())

	on, err := late.events[0].DecodeMotor()
	require.NoError(t, err)
	assert.True(t, on)

	replayed, err := late.events[1].DecodeHistory()
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, 20.0, replayed[0].Percentage, "oldest first")
	assert.Equal(t, 30.0, replayed[1].Percentage)
	assert.Equal(t, 2, f.rec.Status().Observers)
}

func TestDetach(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	other := &recorder{id: "observer-2"}
	detach := f.rec.Attach(ctx, other)
	other.reset()
	detach()

	f.rec.OnMotorCommand(ctx, true)
	assert.Empty(t, other.events)
	assert.Len(t, f.obs.events, 1)
}

func TestFailingObserverIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	broken := &recorder{id: "observer-2"}
	f.rec.Attach(ctx, broken)
	broken.fail = true

	f.rec.OnMotorCommand(ctx, true)
	assert.Equal(t, 1, f.rec.Status().Observers)

	f.rec.OnMotorCommand(ctx, false)
	assert.Len(t, f.obs.events, 2)
}

func TestAttachFailureDoesNotRegister(t *testing.T) {
	f := newFixture(t, 50)

	broken := &recorder{id: "observer-2", fail: true}
	f.rec.Attach(context.Background(), broken)
	assert.Equal(t, 1, f.rec.Status().Observers)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	st := f.rec.Status()
	assert.True(t, st.Stale, "never seen real data")
	assert.False(t, st.Simulating, "motor off")

	f.rec.OnMotorCommand(ctx, true)
	assert.True(t, f.rec.Status().Simulating)

	f.rec.OnMotorCommand(ctx, false)
	f.rec.OnRealReading(ctx, 50, 50)
	st = f.rec.Status()
	assert.False(t, st.Stale)
	assert.False(t, st.Simulating)
	assert.False(t, st.Durable)
	assert.False(t, st.MotorOn)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 50)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.rec.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
