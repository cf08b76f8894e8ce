package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv names the environment variable overriding the testmeta home
const HomeEnv = "TESTMETA_HOME"

// GetTestmetaHome returns the testmeta home directory.
// Priority order:
//  1. TESTMETA_HOME environment variable (if set)
//  2. The nearest existing .testmeta directory at or above the working directory
//  3. .testmeta in the working directory (created)
func GetTestmetaHome() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return GetTestmetaHomeWithRoot(cwd)
}

// GetTestmetaHomeWithRoot resolves the home directory starting the search at root.
func GetTestmetaHomeWithRoot(root string) (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return home, nil
	}

	if found, ok := findHome(root); ok {
		return found, nil
	}

	home := filepath.Join(root, ".testmeta")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create testmeta home directory: %w", err)
	}
	return home, nil
}

// findHome walks up from dir looking for a .testmeta directory
func findHome(dir string) (string, bool) {
	current := dir
	for {
		candidate := filepath.Join(current, ".testmeta")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// GetHistoryDBPath returns the default history database path under the home directory
func GetHistoryDBPath() (string, error) {
	home, err := GetTestmetaHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "history.db"), nil
}
