// Package config loads the orchestrator configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ledgerline/ledgerline/extern"
	"github.com/ledgerline/ledgerline/gate"
)

// Config is the complete orchestrator configuration.
type Config struct {
	// Parallelism is the ceiling on concurrently executing stages and
	// matrix entries. < 1 means unbounded.
	Parallelism int64 `yaml:"parallelism"`

	Cache    CacheConfig     `yaml:"cache"`
	Gate     GateConfig      `yaml:"gate"`
	Targets  TargetsConfig   `yaml:"targets"`
	Rollout  RolloutConfig   `yaml:"rollout"`
	Commands extern.Commands `yaml:"commands"`

	// Images and Charts are the fixed publish matrices.
	Images []string `yaml:"images"`
	Charts []string `yaml:"charts"`

	// Listen is the trigger server bind address.
	Listen string `yaml:"listen"`
}

// CacheConfig selects and parameterizes the artifact cache store.
type CacheConfig struct {
	Backend string `yaml:"backend"` // "memory" or "s3"
	Buster  string `yaml:"buster"`  // external cache invalidation value
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// GateConfig parameterizes the conditional gate evaluator.
type GateConfig struct {
	BotActors  []string          `yaml:"bot_actors"`
	Markers    map[string]string `yaml:"markers"`
	Conditions map[string]string `yaml:"conditions"`
}

// TargetsConfig overrides the fixed build target lists.
type TargetsConfig struct {
	Enclave []string `yaml:"enclave"`
	Gateway []string `yaml:"gateway"`
}

// RolloutConfig parameterizes the staged rollout.
type RolloutConfig struct {
	Line1Version   string `yaml:"line1_version"`
	Line2Version   string `yaml:"line2_version"`
	AlwaysTeardown bool   `yaml:"always_teardown"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Parallelism: 4,
		Cache:       CacheConfig{Backend: "memory", Buster: "v1"},
		Rollout:     RolloutConfig{Line1Version: "4.0.2", Line2Version: "5.1.1"},
		Listen:      ":8080",
	}
}

// Load reads a YAML configuration file, applying defaults for anything
// left unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "", "memory":
	case "s3":
		if c.Cache.Bucket == "" {
			return fmt.Errorf("cache backend s3 requires a bucket")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Rollout.Line1Version == "" || c.Rollout.Line2Version == "" {
		return fmt.Errorf("rollout requires both release line versions")
	}
	return nil
}

// GateConfig resolves the gate configuration, falling back to the stock
// bot identities and markers where unset.
func (c *Config) GateConfig() gate.Config {
	out := gate.DefaultConfig()
	if len(c.Gate.BotActors) > 0 {
		out.BotActors = c.Gate.BotActors
	}
	if len(c.Gate.Markers) > 0 {
		out.Markers = make(map[gate.Class]string, len(c.Gate.Markers))
		for class, marker := range c.Gate.Markers {
			out.Markers[gate.Class(class)] = marker
		}
	}
	if len(c.Gate.Conditions) > 0 {
		out.Conditions = make(map[gate.Class]string, len(c.Gate.Conditions))
		for class, expr := range c.Gate.Conditions {
			out.Conditions[gate.Class(class)] = expr
		}
	}
	return out
}
