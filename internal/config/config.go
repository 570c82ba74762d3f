// ============================================================================
// Action Execution Engine - Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: YAML-backed configuration for the `run` command, matching the
// teacher's cmd/demo Config-struct-plus-yaml.Unmarshal pattern, extended
// with the store/bus/entity-store endpoints and timing knobs this domain
// needs.
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full `actionengine run` configuration.
type Config struct {
	Store struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"store"`

	Bus struct {
		URL string `yaml:"url"`
	} `yaml:"bus"`

	Sweep struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		SampleSize      int `yaml:"sample_size"`
	} `yaml:"sweep"`

	Dispatch struct {
		WorkerCount int `yaml:"worker_count"`
		BufferSize  int `yaml:"buffer_size"`
	} `yaml:"dispatch"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

// Default returns a Config with every field set to its documented
// default, so a missing or partial config file still produces a working
// system.
func Default() Config {
	var c Config
	c.Store.Addr = "localhost:6379"
	c.Store.DB = 0
	c.Bus.URL = "nats://localhost:4222"
	c.Sweep.IntervalSeconds = 5
	c.Sweep.SampleSize = 15
	c.Dispatch.WorkerCount = 8
	c.Dispatch.BufferSize = 256
	c.HTTP.Addr = ":9090"
	return c
}

// SweepInterval returns Sweep.IntervalSeconds as a time.Duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalSeconds) * time.Second
}

// Load reads and decodes path over Default(), so any field the file
// omits keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
