// Package pprof profiles the process while it computes symbolic products.
//
// File mode captures a CPU profile for the lifetime of the collector and
// writes the other requested profiles when it stops. HTTP mode serves the
// standard /debug/pprof endpoints instead, for long benchmark sweeps.
//
// Every phase of a run executes under a "phase" profiler label (see Labeled),
// so CPU samples can be split by estimate, count, scan and materialize with
// `go tool pprof -tagfocus phase=count`.
package pprof

import (
	"fmt"
	"strings"
)

// ModeType defines the pprof collection mode.
type ModeType string

const (
	// ModeFile writes profiles to OutputDir.
	ModeFile ModeType = "file"
	// ModeHTTP exposes pprof endpoints over HTTP.
	ModeHTTP ModeType = "http"
)

// ProfileType defines the type of profile to collect.
type ProfileType string

const (
	ProfileCPU       ProfileType = "cpu"
	ProfileHeap      ProfileType = "heap"
	ProfileGoroutine ProfileType = "goroutine"
	ProfileBlock     ProfileType = "block"
	ProfileMutex     ProfileType = "mutex"
	ProfileAllocs    ProfileType = "allocs"
)

// AllProfileTypes returns all supported profile types.
func AllProfileTypes() []ProfileType {
	return []ProfileType{ProfileCPU, ProfileHeap, ProfileGoroutine, ProfileBlock, ProfileMutex, ProfileAllocs}
}

// DefaultProfileTypes returns the profiles collected when none are named.
func DefaultProfileTypes() []ProfileType {
	return []ProfileType{ProfileCPU, ProfileHeap}
}

// ParseProfileTypes parses a comma-separated list of profile types.
func ParseProfileTypes(s string) ([]ProfileType, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultProfileTypes(), nil
	}
	valid := make(map[ProfileType]bool)
	for _, pt := range AllProfileTypes() {
		valid[pt] = true
	}

	var types []ProfileType
	for _, p := range strings.Split(s, ",") {
		pt := ProfileType(strings.TrimSpace(strings.ToLower(p)))
		if !valid[pt] {
			return nil, fmt.Errorf("unknown profile type: %q", p)
		}
		types = append(types, pt)
	}
	return types, nil
}

// Config holds the pprof configuration.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	Mode      ModeType      `mapstructure:"mode"`
	Profiles  []ProfileType `mapstructure:"profiles"`
	OutputDir string        `mapstructure:"output_dir"`
	// Addr is the listen address in HTTP mode.
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Mode:      ModeFile,
		Profiles:  DefaultProfileTypes(),
		OutputDir: "./pprof",
		Addr:      ":6060",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Mode {
	case ModeFile:
		if c.OutputDir == "" {
			return fmt.Errorf("output directory is required")
		}
		if len(c.Profiles) == 0 {
			return fmt.Errorf("at least one profile type must be specified")
		}
	case ModeHTTP:
		if c.Addr == "" {
			return fmt.Errorf("HTTP address is required")
		}
	default:
		return fmt.Errorf("invalid pprof mode: %q (valid: file, http)", c.Mode)
	}
	return nil
}

// HasProfile checks if a profile type is enabled.
func (c *Config) HasProfile(pt ProfileType) bool {
	for _, p := range c.Profiles {
		if p == pt {
			return true
		}
	}
	return false
}
