package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "CANVAS_RUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the canvas-runner home directory.
//
// Resolution order:
//  1. $CANVAS_RUNNER_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetCacheDir returns <home>/cache.
func GetCacheDir() string {
	return filepath.Join(GetHome(), "cache")
}

// GetDriversDir returns <home>/drivers/<name>, e.g. the Playwright driver bundle.
func GetDriversDir(name string) string {
	return filepath.Join(GetHome(), "drivers", name)
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// Binary-relative: if binary is at <home>/bin/canvas-runner, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
