package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evroute/evroute/internal/worker"
)

type fakePurger struct {
	calls atomic.Int32
	rows  int64
	err   error
}

func (f *fakePurger) Purge(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("purge called without a deadline")
	}
	return f.rows, f.err
}

func TestDefaultPurgeConfig(t *testing.T) {
	cfg := worker.DefaultPurgeConfig()

	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.True(t, cfg.RunOnStart)
}

func TestPurgeJob_RunOnce(t *testing.T) {
	p := &fakePurger{rows: 7}
	job := worker.NewPurgeJob(p, worker.PurgeConfig{}, zerolog.Nop())

	result := job.RunOnce(context.Background())
	require.NoError(t, result.Err)
	assert.Equal(t, int64(7), result.Rows)

	job.RunOnce(context.Background())

	m := job.GetMetrics()
	assert.Equal(t, int64(2), m.TotalRuns)
	assert.Equal(t, int64(0), m.FailedRuns)
	assert.Equal(t, int64(14), m.RowsPurged)
	assert.False(t, m.LastRunAt.IsZero())
	assert.Empty(t, m.LastError)
}

func TestPurgeJob_RunOnceFailure(t *testing.T) {
	p := &fakePurger{err: errors.New("connection refused")}
	job := worker.NewPurgeJob(p, worker.PurgeConfig{}, zerolog.Nop())

	result := job.RunOnce(context.Background())
	require.Error(t, result.Err)

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRuns)
	assert.Equal(t, int64(1), m.FailedRuns)
	assert.Equal(t, int64(0), m.RowsPurged)
	assert.Equal(t, "connection refused", m.LastError)

	snap := job.MetricsSnapshot()
	assert.Equal(t, "connection refused", snap["last_error"])
	assert.Equal(t, int64(1), snap["failed_runs"])
}

func TestPurgeJob_RunStopsOnCancel(t *testing.T) {
	p := &fakePurger{rows: 1}
	job := worker.NewPurgeJob(p, worker.PurgeConfig{
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, job.GetMetrics().RowsPurged, int64(3))
}

func TestPurgeJob_MetricsSnapshotBeforeFirstRun(t *testing.T) {
	job := worker.NewPurgeJob(&fakePurger{}, worker.PurgeConfig{}, zerolog.Nop())

	snap := job.MetricsSnapshot()
	assert.Equal(t, int64(0), snap["total_runs"])
	assert.NotContains(t, snap, "last_run_at")
	assert.NotContains(t, snap, "last_error")
}
