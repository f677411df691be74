package telemetry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = 30 * time.Second

// scriptedSource answers Fetch through a callback that receives the
// 1-based fetch number.
type scriptedSource struct {
	mu       sync.Mutex
	resets   int
	fetches  int
	prints   int
	resetErr error
	fetch    func(n int) (telemetry.Snapshot, error)
}

func (s *scriptedSource) ResetCounters(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return s.resetErr
}

func (s *scriptedSource) Fetch(context.Context) (telemetry.Snapshot, error) {
	s.mu.Lock()
	s.fetches++
	n := s.fetches
	s.mu.Unlock()
	return s.fetch(n)
}

func (s *scriptedSource) PrintEfficiencies(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prints++
	return nil
}

func (s *scriptedSource) counts() (resets, fetches, prints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets, s.fetches, s.prints
}

type countingRecorder struct {
	mu       sync.Mutex
	cycles   int
	failures map[string]int
	speeds   map[string]float64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failures: map[string]int{}, speeds: map[string]float64{}}
}

func (r *countingRecorder) PollCycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
}

func (r *countingRecorder) PollFailure(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[stage]++
}

func (r *countingRecorder) DeviceSpeed(device, algorithm string, speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speeds[device+"/"+algorithm] = speed
}

func (*countingRecorder) DevicePower(string, float64) {}

func (r *countingRecorder) failuresFor(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[stage]
}

func newTestLoop(t *testing.T, clk clock.Clock, src telemetry.Source, store *telemetry.Store, opts ...telemetry.Option) *telemetry.Loop {
	t.Helper()

	opts = append([]telemetry.Option{telemetry.WithClock(clk), telemetry.WithLogger(logger.Nop())}, opts...)
	loop, err := telemetry.NewLoop(telemetry.LoopConfig{Interval: interval}, src, store, opts...)
	require.NoError(t, err)
	return loop
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestNewLoopRejectsInterval(t *testing.T) {
	_, err := telemetry.NewLoop(telemetry.LoopConfig{}, &scriptedSource{}, telemetry.NewStore())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestLoopPublishesAfterInterval(t *testing.T) {
	clk := clock.Fake(epoch)
	src := &scriptedSource{fetch: func(int) (telemetry.Snapshot, error) {
		return snapshotWith(clk.Now(), map[telemetry.DeviceRef]float64{"GPU-aaaa": 42}), nil
	}}
	store := telemetry.NewStore()
	recorder := newCountingRecorder()
	loop := newTestLoop(t, clk, src, store, telemetry.WithRecorder(recorder))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := loop.Start(ctx, nil)

	clk.WaitForTimers(1)
	assert.True(t, store.Read().IsZero(), "nothing is published before the first interval elapses")

	clk.Advance(interval)
	assert.Eventually(t, func() bool { return !store.Read().IsZero() }, time.Second, time.Millisecond)
	assert.Equal(t, epoch.Add(interval), store.Read().Timestamp)
	assert.Eventually(t, func() bool {
		_, _, prints := src.counts()
		return prints == 1
	}, time.Second, time.Millisecond)

	cancel()
	waitClosed(t, done)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, 42.0, recorder.speeds["GPU-aaaa/daggerhashimoto"])
}

func TestLoopSurvivesFetchFailure(t *testing.T) {
	clk := clock.Fake(epoch)
	src := &scriptedSource{fetch: func(n int) (telemetry.Snapshot, error) {
		if n == 1 {
			return telemetry.Snapshot{}, errors.New().New(telemetry.ErrFetchFailed)
		}
		return snapshotWith(clk.Now(), map[telemetry.DeviceRef]float64{"GPU-aaaa": 7}), nil
	}}
	store := telemetry.NewStore()
	recorder := newCountingRecorder()
	loop := newTestLoop(t, clk, src, store, telemetry.WithRecorder(recorder))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := loop.Start(ctx, nil)

	clk.WaitForTimers(1)
	clk.Advance(interval)

	// The second cycle only starts waiting once the first fetch returned.
	clk.WaitForTimers(1)
	assert.True(t, store.Read().IsZero())
	assert.Equal(t, 1, recorder.failuresFor("fetch"))

	clk.Advance(interval)
	assert.Eventually(t, func() bool { return !store.Read().IsZero() }, time.Second, time.Millisecond)

	resets, fetches, _ := src.counts()
	assert.GreaterOrEqual(t, resets, 2)
	assert.Equal(t, 2, fetches)

	cancel()
	waitClosed(t, done)
}

func TestLoopKeepsStaleSnapshotOnFailure(t *testing.T) {
	clk := clock.Fake(epoch)
	src := &scriptedSource{fetch: func(n int) (telemetry.Snapshot, error) {
		if n == 2 {
			return telemetry.Snapshot{}, errors.New().New(telemetry.ErrFetchFailed)
		}
		return snapshotWith(clk.Now(), map[telemetry.DeviceRef]float64{"GPU-aaaa": float64(n)}), nil
	}}
	store := telemetry.NewStore()
	loop := newTestLoop(t, clk, src, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := loop.Start(ctx, nil)

	clk.WaitForTimers(1)
	clk.Advance(interval)
	clk.WaitForTimers(1)
	clk.Advance(interval)
	clk.WaitForTimers(1)

	snapshot := store.Read()
	assert.Equal(t, epoch.Add(interval), snapshot.Timestamp)
	assert.Equal(t, interval, snapshot.Age(clk.Now()))

	cancel()
	waitClosed(t, done)
}

func TestLoopResetFailureStillFetches(t *testing.T) {
	clk := clock.Fake(epoch)
	src := &scriptedSource{
		resetErr: errors.New().New(telemetry.ErrResetFailed),
		fetch: func(int) (telemetry.Snapshot, error) {
			return snapshotWith(clk.Now(), map[telemetry.DeviceRef]float64{"GPU-aaaa": 1}), nil
		},
	}
	store := telemetry.NewStore()
	recorder := newCountingRecorder()
	loop := newTestLoop(t, clk, src, store, telemetry.WithRecorder(recorder))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := loop.Start(ctx, nil)

	clk.WaitForTimers(1)
	clk.Advance(interval)
	assert.Eventually(t, func() bool { return !store.Read().IsZero() }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, recorder.failuresFor("reset"), 1)

	cancel()
	waitClosed(t, done)
}

func TestLoopStopsOnCancelDuringWait(t *testing.T) {
	clk := clock.Fake(epoch)
	src := &scriptedSource{fetch: func(int) (telemetry.Snapshot, error) {
		t.Error("fetch must not run after cancellation")
		return telemetry.Snapshot{}, nil
	}}
	loop := newTestLoop(t, clk, src, telemetry.NewStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := loop.Start(ctx, nil)

	clk.WaitForTimers(1)
	cancel()
	waitClosed(t, done)

	_, fetches, _ := src.counts()
	assert.Zero(t, fetches)
}

func TestLoopStopsWhenWorkerExits(t *testing.T) {
	clk := clock.Fake(epoch)
	src := &scriptedSource{fetch: func(int) (telemetry.Snapshot, error) {
		return telemetry.Snapshot{}, nil
	}}
	loop := newTestLoop(t, clk, src, telemetry.NewStore())

	exited := make(chan struct{})
	done := loop.Start(context.Background(), exited)

	clk.WaitForTimers(1)
	close(exited)
	waitClosed(t, done)
}

func TestLoopRunReturnsOnCanceledContext(t *testing.T) {
	src := &scriptedSource{fetch: func(int) (telemetry.Snapshot, error) {
		return telemetry.Snapshot{}, nil
	}}
	loop := newTestLoop(t, clock.Fake(epoch), src, telemetry.NewStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop.Run(ctx)

	resets, fetches, _ := src.counts()
	assert.Zero(t, resets)
	assert.Zero(t, fetches)
}
