// Package store holds filesystem conventions and the embedded schema of the
// local gloss database.
package store

import (
	"os"
	"path/filepath"
)

// DefaultRoot returns the directory holding the local database.
// Defaults to ~/.gloss, falls back to ./.gloss if home dir unavailable.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".gloss")
	}
	return filepath.Join(home, ".gloss")
}

// DefaultDBPath returns the default database file path.
func DefaultDBPath() string {
	return filepath.Join(DefaultRoot(), "gloss.db")
}
