// Package dotdir manages the .engram/ and ~/.engram directories.
//
// The dot directory holds the config file and, with the default sqlite
// providers, the vector, history and graph database files.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the engram directory.
	dirName = ".engram"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .engram/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.engram/ dir
//  3. Home ~/.engram/ dir
//
// Returns an empty string when no override is given and neither the local
// nor the home directory exists.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating engram directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return filepath.Abs(local)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	homeDir := filepath.Join(home, dirName)
	if info, err := os.Stat(homeDir); err == nil && info.IsDir() {
		return filepath.Abs(homeDir)
	}

	return "", nil
}

// Ensure resolves the target directory like Target but creates the home
// directory when nothing exists yet. Used by commands that need somewhere
// to write.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	if target != "" {
		return target, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating engram directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}
