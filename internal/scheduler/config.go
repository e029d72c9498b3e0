package scheduler

import (
	"os"
	"strings"
	"time"
)

// Config controls scheduler cadence, batch sizing and job selection.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	// EnabledJobs filters which jobs this worker runs. Empty means all
	// (monolith mode); worker fleets shard by naming jobs explicitly.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		JobTimeout:  5 * time.Minute,
		LockTTL:     10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// ProvideConfig reads scheduler tuning from the environment.
func ProvideConfig() Config {
	cfg := Config{}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_RUN_INTERVAL")); raw != "" {
		if interval, err := time.ParseDuration(raw); err == nil {
			cfg.RunInterval = interval
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_JOB_TIMEOUT")); raw != "" {
		if timeout, err := time.ParseDuration(raw); err == nil {
			cfg.JobTimeout = timeout
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_LOCK_TTL")); raw != "" {
		if ttl, err := time.ParseDuration(raw); err == nil {
			cfg.LockTTL = ttl
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, name)
			}
		}
	}
	return cfg.withDefaults()
}
