package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
	n     int
	err   error
	block bool
}

func (s *fakeSweeper) SweepIdle(ctx context.Context, idle time.Duration) (int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, idle)
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.n, s.err
}

func (s *fakeSweeper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestJanitor(sweeper Sweeper, interval time.Duration) *JanitorWorker {
	config := DefaultWorkerConfig("janitor")
	config.Interval = interval
	config.ShutdownTimeout = time.Second
	return NewJanitorWorker(JanitorWorkerConfig{
		WorkerConfig: config,
		Sweeper:      sweeper,
		IdleTTL:      time.Hour,
	})
}

func TestJanitorWorker_RunOnce(t *testing.T) {
	sweeper := &fakeSweeper{n: 3}
	w := newTestJanitor(sweeper, time.Minute)

	swept, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, swept)
	assert.Equal(t, []time.Duration{time.Hour}, sweeper.calls)
	assert.Equal(t, int64(1), w.Stats().JobsSucceeded)
}

func TestJanitorWorker_RunOnceFailure(t *testing.T) {
	sweeper := &fakeSweeper{n: 1, err: assert.AnError}
	w := newTestJanitor(sweeper, time.Minute)

	swept, err := w.RunOnce(context.Background())

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, swept)
	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "sweep", werr.Operation)
	assert.Equal(t, int64(1), w.Stats().JobsFailed)
}

func TestJanitorWorker_SweepsOnInterval(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := newTestJanitor(sweeper, 10*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	assert.Eventually(t, func() bool { return sweeper.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop(context.Background()))
	assert.False(t, w.IsRunning())
	assert.NoError(t, w.Stop(context.Background()))
}

func TestJanitorWorker_StartTwice(t *testing.T) {
	w := newTestJanitor(&fakeSweeper{}, time.Minute)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	assert.Error(t, w.Start(context.Background()))
}

func TestJanitorWorker_StartRequiresInterval(t *testing.T) {
	w := newTestJanitor(&fakeSweeper{}, 0)

	assert.Error(t, w.Start(context.Background()))
	assert.False(t, w.IsRunning())
}

func TestJanitorWorker_StopCancelsSweep(t *testing.T) {
	sweeper := &fakeSweeper{block: true}
	w := newTestJanitor(sweeper, 5*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return sweeper.callCount() >= 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop(context.Background()))
	assert.False(t, w.IsRunning())
	assert.GreaterOrEqual(t, w.Stats().JobsFailed, int64(1))
}

func TestJanitorWorker_InPool(t *testing.T) {
	janitor := newTestJanitor(&fakeSweeper{}, time.Minute)
	pool := NewWorkerPool()
	pool.AddWorker(janitor)

	require.NoError(t, pool.StartAll(context.Background()))
	assert.True(t, janitor.IsRunning())

	stats := pool.GetAllStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "janitor", stats[0].WorkerName)
	assert.True(t, stats[0].IsRunning)

	require.NoError(t, pool.StopAll(context.Background()))
	assert.False(t, janitor.IsRunning())
}
