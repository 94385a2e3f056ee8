package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "warden.db")

	// Scheduler defaults
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.poll_interval_seconds", 10)
	v.SetDefault("scheduler.schedule_refresh_seconds", 60)
	v.SetDefault("scheduler.claim_batch_size", 25)
	v.SetDefault("scheduler.timezone", "Local")
	v.SetDefault("scheduler.max_fanout_depth", 32)
}
