package rollup

import (
	"os"
	"strings"
	"time"
)

// Config controls rollup cadence and the recompute window.
type Config struct {
	Interval   time.Duration
	Lookback   time.Duration
	RunTimeout time.Duration
	LockTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		Lookback:   48 * time.Hour,
		RunTimeout: 10 * time.Minute,
		LockTTL:    5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Lookback <= 0 {
		c.Lookback = defaults.Lookback
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig() Config {
	return Config{
		Interval:   getenvDuration("ROLLUP_INTERVAL", 0),
		Lookback:   getenvDuration("ROLLUP_LOOKBACK", 0),
		RunTimeout: getenvDuration("ROLLUP_RUN_TIMEOUT", 0),
		LockTTL:    getenvDuration("ROLLUP_LOCK_TTL", 0),
	}.withDefaults()
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
