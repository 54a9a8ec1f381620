// Package util holds small helpers shared across packages.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath normalizes a user-supplied path: a leading tilde becomes the
// user's home directory, environment variables ($VAR or ${VAR}) are
// expanded, and the result is cleaned. Flag values and config entries such
// as "~/.openspec-flow/config.yaml" or "$HOME/projects/api" pass through
// here before being opened.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		if path == "~" {
			return homeDir, nil
		}
		path = filepath.Join(homeDir, path[2:])
	}

	path = os.ExpandEnv(path)

	return filepath.Clean(path), nil
}
