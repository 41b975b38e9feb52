package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

const appName = "aftr"

// DefaultDir returns the aftr configuration directory.
//
// Resolution order:
//  1. AFTR_CONFIG_DIR, made absolute
//  2. $XDG_CONFIG_HOME/aftr when XDG_CONFIG_HOME is absolute
//  3. ~/.config/aftr
//
// An empty string is returned when no home directory can be determined.
func DefaultDir() string {
	return resolveDir(os.Getenv)
}

// DefaultPath returns the default location of config.yaml.
func DefaultPath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

func resolveDir(getenv func(string) string) string {
	if v := getenv("AFTR_CONFIG_DIR"); v != "" {
		// templates.dir defaults to this directory and must be absolute
		if expanded, err := homedir.Expand(v); err == nil {
			v = expanded
		}
		if abs, err := filepath.Abs(v); err == nil {
			return abs
		}
		return v
	}
	// relative XDG paths are invalid and ignored
	if v := getenv("XDG_CONFIG_HOME"); filepath.IsAbs(v) {
		return filepath.Join(v, appName)
	}
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}
