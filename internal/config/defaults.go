package config

import (
	"os"
	"path/filepath"
	"strconv"
)

const appDir = "autotyped"

// xdgDir returns $env/autotyped, or ~/<fallback...>/autotyped when env is unset.
func xdgDir(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, appDir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(append(append([]string{home}, fallback...), appDir)...)
}

// ConfigDir is $XDG_CONFIG_HOME/autotyped.
func ConfigDir() string { return xdgDir("XDG_CONFIG_HOME", ".config") }

// DataDir is $XDG_DATA_HOME/autotyped, or $AUTOTYPE_DATA_DIR when set.
func DataDir() string {
	if v := os.Getenv("AUTOTYPE_DATA_DIR"); v != "" {
		return v
	}
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// StateDir is $XDG_STATE_HOME/autotyped. Logs live here.
func StateDir() string { return xdgDir("XDG_STATE_HOME", ".local", "state") }

// RuntimeDir is $XDG_RUNTIME_DIR/autotyped, falling back to a per-uid /tmp directory.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appDir)
	}
	return filepath.Join(os.TempDir(), appDir+"-"+strconv.Itoa(os.Getuid()))
}

// SocketPath is the default control socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "autotyped.sock")
}

// SupportedConfigFormats lists recognised config file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile returns the first config.<ext> found in the working
// directory or ConfigDir, or "" when there is none.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
