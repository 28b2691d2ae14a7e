// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package config loads the optional .wifisdrc TOML file, searched
// upward from the working directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const rcFile = ".wifisdrc"

type Config struct {
	BroadcastAddr string `toml:"broadcast_addr"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`

	ReadTimeoutMS       int `toml:"read_timeout_ms"`
	BroadcastIntervalMS int `toml:"broadcast_interval_ms"`
	WatchIntervalMS     int `toml:"watch_interval_ms"`

	CacheDir      string   `toml:"cache_dir"`
	WatchPatterns []string `toml:"watch_patterns"`
}

// Default matches the cards' factory configuration.
func Default() Config {
	return Config{
		BroadcastAddr:       "192.168.0.255",
		Username:            "admin",
		Password:            "admin",
		ReadTimeoutMS:       5000,
		BroadcastIntervalMS: 10000,
		WatchIntervalMS:     5000,
	}
}

// Find walks up from startDir looking for a .wifisdrc. Returns "" and
// no error when there is none.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, rcFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads path over the defaults. An empty path returns plain
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
