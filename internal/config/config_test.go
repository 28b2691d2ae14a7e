// Copyright (c) the wifisd authors
// Licensed under the MIT license

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "192.168.0.255", cfg.BroadcastAddr)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, "admin", cfg.Password)
	assert.Equal(t, 5000, cfg.ReadTimeoutMS)
	assert.Equal(t, 10000, cfg.BroadcastIntervalMS)
	assert.Equal(t, 5000, cfg.WatchIntervalMS)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".wifisdrc")
	require.NoError(t, os.WriteFile(path, []byte(`
broadcast_addr = "10.0.0.255"
username = "photo"
read_timeout_ms = 1500
watch_patterns = ["*.jpg", "*.raw"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.255", cfg.BroadcastAddr)
	assert.Equal(t, "photo", cfg.Username)
	assert.Equal(t, "admin", cfg.Password, "unset keys keep defaults")
	assert.Equal(t, 1500, cfg.ReadTimeoutMS)
	assert.Equal(t, []string{"*.jpg", "*.raw"}, cfg.WatchPatterns)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".wifisdrc")
	require.NoError(t, os.WriteFile(path, []byte("broadcast_addr = ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	rc := filepath.Join(root, ".wifisdrc")
	require.NoError(t, os.WriteFile(rc, nil, 0o644))

	found, err := Find(deep)
	require.NoError(t, err)
	assert.Equal(t, rc, found)
}

func TestFindNothing(t *testing.T) {
	// A fresh temp dir has no .wifisdrc anywhere above it, usually;
	// guard against one in the temp root by nesting once.
	dir := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	found, err := Find(dir)
	require.NoError(t, err)
	// "" means none found (unless the host really has one up-tree)
	if found != "" && filepath.Base(found) != rcFile {
		t.Errorf("found = %q", found)
	}
}
