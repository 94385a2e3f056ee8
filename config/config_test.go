package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "warden.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 10, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, 60, cfg.Scheduler.ScheduleRefreshSeconds)
	assert.Equal(t, 25, cfg.Scheduler.ClaimBatchSize)
	assert.Equal(t, "Local", cfg.Scheduler.Timezone)
	assert.Equal(t, 32, cfg.Scheduler.MaxFanoutDepth)

	require.NoError(t, cfg.Validate())
}

func TestIntervalHelpers(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.ScheduleRefreshInterval())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Scheduler.Workers = -1 }},
		{"zero poll interval", func(c *Config) { c.Scheduler.PollIntervalSeconds = 0 }},
		{"zero refresh interval", func(c *Config) { c.Scheduler.ScheduleRefreshSeconds = 0 }},
		{"zero batch size", func(c *Config) { c.Scheduler.ClaimBatchSize = 0 }},
		{"zero fanout depth", func(c *Config) { c.Scheduler.MaxFanoutDepth = 0 }},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus_Mons" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := defaultConfig(t)

	loc, err := cfg.Scheduler.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Scheduler.Timezone = "Australia/Sydney"
	loc, err = cfg.Scheduler.Location()
	require.NoError(t, err)
	assert.Equal(t, "Australia/Sydney", loc.String())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.toml")

	content := `
[database]
path = "/var/lib/warden/warden.db"

[scheduler]
workers = 8
poll_interval_seconds = 5
timezone = "UTC"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/warden/warden.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 5, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	// Unset keys fall back to defaults
	assert.Equal(t, 25, cfg.Scheduler.ClaimBatchSize)
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.toml")

	content := `
[scheduler]
workers = -3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.workers")
}
