// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Package xdg resolves the XDG Base Directory locations galacticfy reads
// its configuration from.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "galacticfy"

// ConfigFileName is the file looked up in ConfigDir when no --config is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the galacticfy config directory.
// Checks XDG_CONFIG_HOME first, falls back to $HOME/.config.
func ConfigDir(getenv func(string) string) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// FindConfigFile returns the path of ConfigFileName in ConfigDir, or "" when
// no such file exists.
func FindConfigFile(getenv func(string) string) (string, error) {
	if getenv("XDG_CONFIG_HOME") == "" && getenv("HOME") == "" {
		return "", nil
	}
	path := filepath.Join(ConfigDir(getenv), ConfigFileName)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", oops.In("xdg").With("path", path).Wrap(err)
	case info.IsDir():
		return "", oops.In("xdg").With("path", path).Errorf("config path is a directory")
	}
	return path, nil
}
