package dedupe

import (
	"fmt"
	"time"
)

// Config holds the time windows of the duplicate filter.
type Config struct {
	// OutgoingWindow is how long after a record was sent an equivalent
	// candidate is suppressed by ShouldSuppress.
	OutgoingWindow time.Duration

	// RetentionWindow bounds which records Reconcile compares. Older
	// records are dropped from the store without an upstream delete.
	RetentionWindow time.Duration

	// MinSweepInterval is the self-throttle of Reconcile: calls arriving
	// sooner than this after the previous sweep are no-ops.
	MinSweepInterval time.Duration

	// DeleteConcurrency caps the number of in-flight upstream deletes
	// issued by one sweep.
	DeleteConcurrency int
}

func DefaultConfig() Config {
	return Config{
		OutgoingWindow:    2 * time.Second,
		RetentionWindow:   10 * time.Second,
		MinSweepInterval:  time.Second,
		DeleteConcurrency: 4,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.OutgoingWindow < 0 {
		return fmt.Errorf("outgoing_window cannot be negative (got %v)", c.OutgoingWindow)
	}
	if c.RetentionWindow <= 0 {
		return fmt.Errorf("retention_window must be positive (got %v)", c.RetentionWindow)
	}
	if c.RetentionWindow > 10*time.Minute {
		return fmt.Errorf("retention_window too large (got %v, max 10m)", c.RetentionWindow)
	}
	if c.OutgoingWindow > c.RetentionWindow {
		return fmt.Errorf("outgoing_window (%v) must not exceed retention_window (%v)",
			c.OutgoingWindow, c.RetentionWindow)
	}
	if c.MinSweepInterval < 0 {
		return fmt.Errorf("min_sweep_interval cannot be negative (got %v)", c.MinSweepInterval)
	}
	if c.DeleteConcurrency <= 0 {
		return fmt.Errorf("delete_concurrency must be positive (got %d)", c.DeleteConcurrency)
	}
	if c.DeleteConcurrency > 32 {
		return fmt.Errorf("delete_concurrency too large (got %d, max 32)", c.DeleteConcurrency)
	}
	return nil
}
