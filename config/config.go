// Package config provides warden's process-wide configuration.
//
// Configuration is read once at startup and immutable for the process
// lifetime. Sources, lowest to highest precedence: built-in defaults,
// /etc/warden/config.toml, ~/.warden/config.toml, ./warden.toml, WARDEN_*
// environment variables.
package config

import (
	"time"

	"github.com/teranos/warden/errors"
)

// Config represents the core warden configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// DatabaseConfig configures the SQLite application-state store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the scheduler core: poll cadence, schedule
// refresh cadence, worker pool size, and timezone for trigger computation.
type SchedulerConfig struct {
	Workers                int    `mapstructure:"workers"`                  // Worker pool size (default: 4)
	PollIntervalSeconds    int    `mapstructure:"poll_interval_seconds"`    // Queue poll cadence (default: 10)
	ScheduleRefreshSeconds int    `mapstructure:"schedule_refresh_seconds"` // Schedule sync cadence (default: 60)
	ClaimBatchSize         int    `mapstructure:"claim_batch_size"`         // Max requests claimed per poll (default: 25)
	Timezone               string `mapstructure:"timezone"`                 // IANA zone name for triggers (default: "Local")
	MaxFanoutDepth         int    `mapstructure:"max_fanout_depth"`         // Dependency fan-out depth cap (default: 32)
}

// PollInterval returns the queue poll cadence as a duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// ScheduleRefreshInterval returns the schedule sync cadence as a duration.
func (s SchedulerConfig) ScheduleRefreshInterval() time.Duration {
	return time.Duration(s.ScheduleRefreshSeconds) * time.Second
}

// Location resolves the configured timezone. An empty or "Local" value
// resolves to the host timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid scheduler.timezone %q", s.Timezone)
	}
	return loc, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "warden.db" per defaults.go

	// Workers: 0 = poll and claim but never execute, negative = invalid
	if c.Scheduler.Workers < 0 {
		return errors.Newf("scheduler.workers must be >= 0, got %d", c.Scheduler.Workers)
	}

	if c.Scheduler.PollIntervalSeconds <= 0 {
		return errors.Newf("scheduler.poll_interval_seconds must be > 0, got %d", c.Scheduler.PollIntervalSeconds)
	}

	if c.Scheduler.ScheduleRefreshSeconds <= 0 {
		return errors.Newf("scheduler.schedule_refresh_seconds must be > 0, got %d", c.Scheduler.ScheduleRefreshSeconds)
	}

	if c.Scheduler.ClaimBatchSize <= 0 {
		return errors.Newf("scheduler.claim_batch_size must be > 0, got %d", c.Scheduler.ClaimBatchSize)
	}

	if c.Scheduler.MaxFanoutDepth <= 0 {
		return errors.Newf("scheduler.max_fanout_depth must be > 0, got %d", c.Scheduler.MaxFanoutDepth)
	}

	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}

	return nil
}
