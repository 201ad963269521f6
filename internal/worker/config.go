// Package worker provides background maintenance jobs for the route planner.
package worker

import (
	"time"
)

// PurgeConfig holds configuration for the distance cache purge job.
type PurgeConfig struct {
	// Interval is the time between purge runs.
	// Default: 15 minutes
	Interval time.Duration

	// Timeout bounds a single purge run.
	// Default: 1 minute
	Timeout time.Duration

	// RunOnStart purges once before the first tick.
	RunOnStart bool
}

// DefaultPurgeConfig returns the default purge configuration.
func DefaultPurgeConfig() PurgeConfig {
	return PurgeConfig{
		Interval:   15 * time.Minute,
		Timeout:    time.Minute,
		RunOnStart: true,
	}
}

func (c PurgeConfig) withDefaults() PurgeConfig {
	def := DefaultPurgeConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
