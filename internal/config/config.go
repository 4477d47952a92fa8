// Package config handles configuration loading, validation, and hot reload for autotyped.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"autotyped/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// DefaultSequence is typed for entries that carry no template of their own.
const DefaultSequence = "{USERNAME}{TAB}{PASSWORD}{ENTER}"

// Config holds the complete daemon configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	AutoType AutoTypeConfig `toml:"autotype" json:"autotype" yaml:"autotype"`
	Platform PlatformConfig `toml:"platform" json:"platform" yaml:"platform"`
	Picker   PickerConfig   `toml:"picker" json:"picker" yaml:"picker"`
	Store    StoreConfig    `toml:"store" json:"store" yaml:"store"`
	Notify   NotifyConfig   `toml:"notify" json:"notify" yaml:"notify"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
	IPC      IPCConfig      `toml:"ipc" json:"ipc" yaml:"ipc"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// AutoTypeConfig controls the auto-type pipeline.
type AutoTypeConfig struct {
	// DirectAutoType skips the picker when exactly one entry matches.
	DirectAutoType bool `toml:"direct_auto_type" json:"direct_auto_type" yaml:"direct_auto_type"`

	// LockOnAutoType closes the entry store once a run has started.
	LockOnAutoType bool `toml:"lock_on_auto_type" json:"lock_on_auto_type" yaml:"lock_on_auto_type"`

	// ObfuscateByDefault obfuscates every run, not just entries that ask for it.
	ObfuscateByDefault bool `toml:"obfuscate_by_default" json:"obfuscate_by_default" yaml:"obfuscate_by_default"`

	// DefaultSequence is used for entries without their own template.
	DefaultSequence string `toml:"default_sequence" json:"default_sequence" yaml:"default_sequence"`

	// HideSettleMs is waited after hiding our own window before typing.
	HideSettleMs int `toml:"hide_settle_ms" json:"hide_settle_ms" yaml:"hide_settle_ms"`

	// RedrawDelayMs is waited before showing the main window for a pending trigger.
	RedrawDelayMs int `toml:"redraw_delay_ms" json:"redraw_delay_ms" yaml:"redraw_delay_ms"`

	// KeyDelayMs is the pause between injected operations.
	KeyDelayMs int `toml:"key_delay_ms" json:"key_delay_ms" yaml:"key_delay_ms"`

	// ClearTextLog logs operation trees without masking literal text.
	ClearTextLog bool `toml:"clear_text_log" json:"clear_text_log" yaml:"clear_text_log"`

	// Hotkey is a global key chord, e.g. ["ctrl", "alt", "a"], that
	// triggers auto-type. Empty leaves triggering to autotypectl. Needs a
	// build with -tags gohook.
	Hotkey []string `toml:"hotkey" json:"hotkey,omitempty" yaml:"hotkey,omitempty"`
}

// PlatformConfig selects the window/keystroke backend.
type PlatformConfig struct {
	// Backend is "xdotool", "robotgo", "null" or "auto". robotgo needs
	// a build with -tags robotgo.
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// XdotoolPath overrides the xdotool binary looked up in PATH.
	XdotoolPath string `toml:"xdotool_path" json:"xdotool_path" yaml:"xdotool_path"`

	// AppWindowID is the X11 window id of our own UI, if any.
	AppWindowID string `toml:"app_window_id" json:"app_window_id" yaml:"app_window_id"`

	// AppWindowTitle matches our own UI by title when no id is known.
	AppWindowTitle string `toml:"app_window_title" json:"app_window_title" yaml:"app_window_title"`
}

// PickerConfig selects how the user chooses between several entries.
type PickerConfig struct {
	// Kind is "command", "terminal" or "none".
	Kind string `toml:"kind" json:"kind" yaml:"kind"`

	// Command is the dmenu-compatible program and its arguments.
	Command []string `toml:"command" json:"command" yaml:"command"`

	// TimeoutSec bounds how long a picker may stay open. 0 waits forever.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// StoreConfig configures the SQLite entry store.
type StoreConfig struct {
	Path string `toml:"path" json:"path" yaml:"path"`

	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// Argon2id parameters for deriving the field key from the passphrase.
	KDFTime      uint32 `toml:"kdf_time" json:"kdf_time" yaml:"kdf_time"`
	KDFMemoryKiB uint32 `toml:"kdf_memory_kib" json:"kdf_memory_kib" yaml:"kdf_memory_kib"`
	KDFThreads   uint8  `toml:"kdf_threads" json:"kdf_threads" yaml:"kdf_threads"`

	// WatchChanges reloads entries when another process modifies the database.
	WatchChanges bool `toml:"watch_changes" json:"watch_changes" yaml:"watch_changes"`
}

// NotifyConfig configures user-visible failure messages.
type NotifyConfig struct {
	// Backend is "dbus" or "log".
	Backend   string `toml:"backend" json:"backend" yaml:"backend"`
	AppName   string `toml:"app_name" json:"app_name" yaml:"app_name"`
	TimeoutMs int    `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// AuditPath is the JSON-lines audit trail. Empty disables auditing.
	AuditPath string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`
}

// IPCConfig holds the control socket settings.
type IPCConfig struct {
	SocketPath     string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
	Permissions    string `toml:"permissions" json:"permissions" yaml:"permissions"`
	MaxConnections int    `toml:"max_connections" json:"max_connections" yaml:"max_connections"`
	TimeoutSec     int    `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	// RequireSameUser rejects peers whose uid differs from ours.
	RequireSameUser bool `toml:"require_same_user" json:"require_same_user" yaml:"require_same_user"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	data := DataDir()
	state := StateDir()
	return &Config{
		Version: Version,
		AutoType: AutoTypeConfig{
			DirectAutoType:  true,
			DefaultSequence: DefaultSequence,
			HideSettleMs:    100,
			RedrawDelayMs:   300,
			KeyDelayMs:      10,
		},
		Platform: PlatformConfig{
			Backend: "auto",
		},
		Picker: PickerConfig{
			Kind:    "command",
			Command: []string{"rofi", "-dmenu", "-i", "-p", "autotype"},
		},
		Store: StoreConfig{
			Path:          filepath.Join(data, "entries.db"),
			BusyTimeoutMs: 5000,
			KDFTime:       3,
			KDFMemoryKiB:  64 * 1024,
			KDFThreads:    4,
			WatchChanges:  true,
		},
		Notify: NotifyConfig{
			Backend:   "dbus",
			AppName:   "autotyped",
			TimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(state, "autotyped.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
			AuditPath:  filepath.Join(state, "audit.log"),
		},
		IPC: IPCConfig{
			SocketPath:      SocketPath(),
			Permissions:     "0600",
			MaxConnections:  8,
			TimeoutSec:      30,
			RequireSameUser: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from path, which may be TOML, JSON or YAML.
// A missing file yields the defaults. Environment overrides are applied
// in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies AUTOTYPE_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("AUTOTYPE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("AUTOTYPE_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("AUTOTYPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUTOTYPE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("AUTOTYPE_BACKEND"); v != "" {
		c.Platform.Backend = v
	}
	if v := os.Getenv("AUTOTYPE_PICKER"); v != "" {
		c.Picker.Kind = v
	}
	if v := os.Getenv("AUTOTYPE_DEFAULT_SEQUENCE"); v != "" {
		c.AutoType.DefaultSequence = v
	}
	if v, ok := envBool("AUTOTYPE_DIRECT"); ok {
		c.AutoType.DirectAutoType = v
	}
	if v, ok := envBool("AUTOTYPE_OBFUSCATE"); ok {
		c.AutoType.ObfuscateByDefault = v
	}
	if v, ok := envBool("AUTOTYPE_CLEAR_TEXT_LOG"); ok {
		c.AutoType.ClearTextLog = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:  c.Version,
		AutoType: c.AutoType,
		Platform: c.Platform,
		Picker:   c.Picker,
		Store:    c.Store,
		Notify:   c.Notify,
		Logging:  c.Logging,
		IPC:      c.IPC,
	}
	clone.Picker.Command = append([]string(nil), c.Picker.Command...)
	clone.AutoType.Hotkey = append([]string(nil), c.AutoType.Hotkey...)
	return clone
}

// Encode renders the configuration in the format implied by ext
// (".toml", ".json", ".yaml" or ".yml").
func (c *Config) Encode(ext string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(c)
	default:
		var buf bytes.Buffer
		buf.WriteString("# autotyped configuration\n")
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// Save writes the configuration to path with owner-only permissions.
func (c *Config) Save(path string) error {
	data, err := c.Encode(filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := security.WriteSecretFile(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, p := range []string{c.Store.Path, c.Logging.FilePath, c.Logging.AuditPath, c.IPC.SocketPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create directory for %s: %w", p, err)
		}
	}
	return nil
}
