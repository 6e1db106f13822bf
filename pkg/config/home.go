package config

import (
	"os"
	"path/filepath"
	"sync"
)

// EnvHome overrides the runner home directory.
const EnvHome = "DEVICE_FEATURES_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the runner home directory, resolved once per process:
// $DEVICE_FEATURES_HOME, then <home> when the binary sits in <home>/bin,
// then the working directory.
func GetHome() string {
	homeOnce.Do(func() { homeDir = resolveHome() })
	return homeDir
}

// GetDriversDir returns <home>/drivers/<platform>.
func GetDriversDir(platform string) string {
	return filepath.Join(GetHome(), "drivers", platform)
}

func resolveHome() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	if dir, ok := installRoot(); ok {
		return dir
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// installRoot reports the parent of bin/ for an installed binary.
func installRoot() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	bin := filepath.Dir(exe)
	if filepath.Base(bin) != "bin" {
		return "", false
	}
	return filepath.Dir(bin), true
}

// ResetHome clears the cached home directory. Tests only.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
