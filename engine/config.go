package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines tuning parameters for the engine's operational behavior.
// The dedup and guard values were chosen empirically against noisy upstream
// producers; they are configuration precisely because no constant survives
// contact with a new backend.
type Config struct {
	// Enabled gates the whole subsystem. When false every ingestion call is
	// a no-op and every query returns a zero value.
	Enabled bool

	// DedupTTL bounds how long an idempotency key suppresses redelivery.
	DedupTTL time.Duration

	// DedupMaxEntries caps the dedup ledger after a sweep.
	DedupMaxEntries int

	// DedupSweepInterval is the period of the ledger sweep timer.
	DedupSweepInterval time.Duration

	// GuardThreshold is the number of same-call-site mutations inside one
	// guard window that counts as a runaway loop.
	GuardThreshold int

	// GuardWindow is the loop guard's sliding window.
	GuardWindow time.Duration
}

// DefaultConfig provides production-ready default configuration values. The
// guard window sits well above any legitimate streaming burst while still
// catching synchronous re-entrancy within a few milliseconds of spin.
var DefaultConfig = Config{
	Enabled:            true,
	DedupTTL:           5 * time.Minute,
	DedupMaxEntries:    10000,
	DedupSweepInterval: 30 * time.Second,
	GuardThreshold:     25,
	GuardWindow:        250 * time.Millisecond,
}

// fileConfig is the YAML shape; durations are strings ("5m", "250ms") so
// operators write what time.ParseDuration reads.
type fileConfig struct {
	Enabled            *bool  `yaml:"enabled"`
	DedupTTL           string `yaml:"dedup_ttl"`
	DedupMaxEntries    *int   `yaml:"dedup_max_entries"`
	DedupSweepInterval string `yaml:"dedup_sweep_interval"`
	GuardThreshold     *int   `yaml:"guard_threshold"`
	GuardWindow        string `yaml:"guard_window"`
}

// LoadConfig reads a YAML file and overlays it on DefaultConfig. Absent keys
// keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig overlays YAML bytes on DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg := DefaultConfig
	if fc.Enabled != nil {
		cfg.Enabled = *fc.Enabled
	}
	if fc.DedupMaxEntries != nil {
		cfg.DedupMaxEntries = *fc.DedupMaxEntries
	}
	if fc.GuardThreshold != nil {
		cfg.GuardThreshold = *fc.GuardThreshold
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{fc.DedupTTL, &cfg.DedupTTL, "dedup_ttl"},
		{fc.DedupSweepInterval, &cfg.DedupSweepInterval, "dedup_sweep_interval"},
		{fc.GuardWindow, &cfg.GuardWindow, "guard_window"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}
