// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

// Package xdg resolves the XDG Base Directory locations InternHub uses for its
// config file and JSON store.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "internhub"

// ConfigDir returns the XDG config directory for internhub.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DataDir returns the XDG data directory for internhub.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(base, appName)
}

// ConfigFile is the config file read when no --config flag is given.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StorePath is the default location of the JSON document store.
func StorePath() string {
	return filepath.Join(DataDir(), "db.json")
}
