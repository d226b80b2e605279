// Package storage resolves where the binaries keep per-user files, using
// the XDG base directory layout.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName is the directory created under each base directory.
const AppName = "p2p-presence"

// base is an XDG base directory: an override variable and the path under
// $HOME used without it.
type base struct {
	env      string
	fallback []string
}

var (
	configBase = base{env: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataBase   = base{env: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

func (b base) dir() string {
	if root := os.Getenv(b.env); root != "" {
		return filepath.Join(root, AppName)
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(append(append([]string{home}, b.fallback...), AppName)...)
	}
	return ""
}

// ConfigDir returns the application's config directory, or "" when neither
// XDG_CONFIG_HOME nor HOME is set.
func ConfigDir() string { return configBase.dir() }

// DataDir returns the application's data directory, or "" when neither
// XDG_DATA_HOME nor HOME is set.
func DataDir() string { return dataBase.dir() }

// ConfigFile returns the path of name inside ConfigDir. Without an XDG
// location it falls back to the platform config directory.
func ConfigFile(name string) (string, error) {
	dir := ConfigDir()
	if dir == "" {
		root, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("config dir for %s: %w", name, err)
		}
		dir = filepath.Join(root, AppName)
	}
	return filepath.Join(dir, name), nil
}

// EnsureDataDir creates DataDir, or a directory under the temp dir when
// there is no home, and returns it.
func EnsureDataDir() (string, error) {
	dir := DataDir()
	if dir == "" {
		dir = filepath.Join(os.TempDir(), AppName)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}
