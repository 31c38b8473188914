// Package testutil provides utilities for testing fetchrun in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Env describes the isolated directories created by SetupTestEnv.
type Env struct {
	Home       string
	ConfigDir  string
	Downloads  string
	ConfigFile string
}

// SetupTestEnv points HOME and the XDG config directory at a fresh temp
// directory and unsets every FETCHRUN_* and GITHUB_TOKEN variable, so tests
// never read the user's config file or send their credentials.
//
// Cleanup is handled by t.TempDir and t.Setenv.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := &Env{
		Home:      filepath.Join(tmpDir, "home"),
		ConfigDir: filepath.Join(tmpDir, "config"),
		Downloads: filepath.Join(tmpDir, "home", "Downloads"),
	}
	env.ConfigFile = filepath.Join(env.ConfigDir, "fetchrun", "fetchrun.lua")

	t.Setenv("HOME", env.Home)
	t.Setenv("USERPROFILE", env.Home)
	t.Setenv("XDG_CONFIG_HOME", env.ConfigDir)
	t.Setenv("APPDATA", env.ConfigDir)

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "FETCHRUN_") || name == "GITHUB_TOKEN" {
			// Setenv first so the original value is restored after the test.
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}

	for _, dir := range []string{env.Home, env.ConfigDir, env.Downloads} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}
