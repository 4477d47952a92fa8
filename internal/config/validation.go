package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"autotyped/internal/sequence"
)

// ErrInvalidConfig is matched by every error ValidateConfig returns.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one problem with one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets callers test errors.Is(err, ErrInvalidConfig).
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for i := range e {
		out = append(out, e[i].Field)
	}
	return out
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.add(field, "invalid value %q (valid: %s)", value, strings.Join(allowed, ", "))
}

func (v *validator) nonNegative(field string, n int) {
	if n < 0 {
		v.add(field, "cannot be negative")
	}
}

// ValidateConfig checks every section and returns ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := &validator{}

	if c.Version < 1 || c.Version > Version {
		v.add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	a := c.AutoType
	if a.DefaultSequence == "" {
		v.add("autotype.default_sequence", "required field is missing")
	} else if _, err := sequence.Parse(a.DefaultSequence); err != nil {
		v.add("autotype.default_sequence", "%v", err)
	}
	v.nonNegative("autotype.hide_settle_ms", a.HideSettleMs)
	v.nonNegative("autotype.redraw_delay_ms", a.RedrawDelayMs)
	v.nonNegative("autotype.key_delay_ms", a.KeyDelayMs)
	for i, k := range a.Hotkey {
		if strings.TrimSpace(k) == "" {
			v.add(fmt.Sprintf("autotype.hotkey[%d]", i), "empty key name")
		}
	}

	v.oneOf("platform.backend", c.Platform.Backend, "auto", "xdotool", "robotgo", "null")

	v.oneOf("picker.kind", c.Picker.Kind, "command", "terminal", "none")
	if c.Picker.Kind == "command" && len(c.Picker.Command) == 0 {
		v.add("picker.command", "required when picker.kind is \"command\"")
	}
	v.nonNegative("picker.timeout_sec", c.Picker.TimeoutSec)

	if c.Store.Path == "" {
		v.add("store.path", "required field is missing")
	}
	if c.Store.KDFTime < 1 {
		v.add("store.kdf_time", "must be at least 1")
	}
	if c.Store.KDFMemoryKiB < 8*1024 {
		v.add("store.kdf_memory_kib", "must be at least 8192")
	}
	if c.Store.KDFThreads < 1 {
		v.add("store.kdf_threads", "must be at least 1")
	}
	v.nonNegative("store.busy_timeout_ms", c.Store.BusyTimeoutMs)

	v.oneOf("notify.backend", c.Notify.Backend, "dbus", "log")

	l := c.Logging
	v.oneOf("logging.level", l.Level, "debug", "info", "warn", "error")
	v.oneOf("logging.format", l.Format, "text", "json")
	v.oneOf("logging.output", l.Output, "stdout", "stderr", "file", "both")
	if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
		v.add("logging.file_path", "required when output writes to a file")
	}
	v.nonNegative("logging.max_size_mb", l.MaxSizeMB)
	v.nonNegative("logging.max_backups", l.MaxBackups)

	if c.IPC.SocketPath == "" {
		v.add("ipc.socket_path", "required field is missing")
	}
	if p, err := strconv.ParseUint(c.IPC.Permissions, 8, 32); err != nil || p > 0o777 {
		v.add("ipc.permissions", "invalid octal mode %q", c.IPC.Permissions)
	}
	if c.IPC.MaxConnections < 1 {
		v.add("ipc.max_connections", "must be at least 1")
	}
	v.nonNegative("ipc.timeout_sec", c.IPC.TimeoutSec)

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}
