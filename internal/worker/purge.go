package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Purger removes expired entries from a cache backend.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// PurgeJob periodically deletes expired rows from the shared distance cache.
type PurgeJob struct {
	purger Purger
	config PurgeConfig
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	metrics PurgeMetrics
}

// PurgeMetrics tracks purge job statistics.
type PurgeMetrics struct {
	TotalRuns  int64
	FailedRuns int64
	RowsPurged int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastError       string
}

// PurgeResult is the outcome of one run.
type PurgeResult struct {
	StartTime time.Time
	Duration  time.Duration
	Rows      int64
	Err       error
}

// NewPurgeJob creates a purge job. Zero config fields take the defaults.
func NewPurgeJob(purger Purger, cfg PurgeConfig, logger zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		purger: purger,
		config: cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// RunOnce purges expired rows a single time.
func (j *PurgeJob) RunOnce(ctx context.Context) PurgeResult {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	start := j.now()
	rows, err := j.purger.Purge(ctx)
	result := PurgeResult{
		StartTime: start,
		Duration:  j.now().Sub(start),
		Rows:      rows,
		Err:       err,
	}
	j.record(result)

	if err != nil {
		j.logger.Error().Err(err).
			Dur("duration", result.Duration).
			Msg("distance cache purge failed")
		return result
	}
	j.logger.Info().
		Int64("rows", rows).
		Dur("duration", result.Duration).
		Msg("distance cache purged")
	return result
}

// Run purges on every interval until ctx is cancelled.
func (j *PurgeJob) Run(ctx context.Context) {
	j.logger.Info().
		Dur("interval", j.config.Interval).
		Msg("starting distance cache purge job")

	if j.config.RunOnStart {
		j.RunOnce(ctx)
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("distance cache purge job stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *PurgeJob) record(result PurgeResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.LastRunAt = result.StartTime
	j.metrics.LastRunDuration = result.Duration
	if result.Err != nil {
		j.metrics.FailedRuns++
		j.metrics.LastError = result.Err.Error()
		return
	}
	j.metrics.RowsPurged += result.Rows
	j.metrics.LastError = ""
}

// GetMetrics returns a copy of the current metrics.
func (j *PurgeJob) GetMetrics() PurgeMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metrics
}

// MetricsSnapshot returns the current metrics as a map for the health endpoint.
func (j *PurgeJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	snap := map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"failed_runs":       m.FailedRuns,
		"rows_purged":       m.RowsPurged,
		"last_run_duration": m.LastRunDuration.String(),
	}
	if !m.LastRunAt.IsZero() {
		snap["last_run_at"] = m.LastRunAt.UTC().Format(time.RFC3339)
	}
	if m.LastError != "" {
		snap["last_error"] = m.LastError
	}
	return snap
}
