package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType classifies an audit record.
type AuditEventType string

const (
	AuditRun            AuditEventType = "autotype_run"
	AuditWindowMismatch AuditEventType = "window_mismatch"
	AuditTriggerIgnored AuditEventType = "trigger_ignored"
	AuditStoreOpened    AuditEventType = "store_opened"
	AuditStoreLocked    AuditEventType = "store_locked"
	AuditConfigReload   AuditEventType = "config_reload"
	AuditPeerDenied     AuditEventType = "peer_denied"
	AuditStartup        AuditEventType = "startup"
	AuditShutdown       AuditEventType = "shutdown"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAborted = "aborted"
	ResultDenied  = "denied"
)

// AuditEvent is one JSON line in the audit trail. It records which entry
// was typed into which window, never what was typed.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	Type        AuditEventType `json:"type"`
	RunID       string         `json:"run_id,omitempty"`
	EntryID     string         `json:"entry_id,omitempty"`
	EntryTitle  string         `json:"entry_title,omitempty"`
	WindowTitle string         `json:"window_title,omitempty"`
	WindowURL   string         `json:"window_url,omitempty"`
	Obfuscated  bool           `json:"obfuscated,omitempty"`
	Result      string         `json:"result"`
	Error       string         `json:"error,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// AuditLogger appends AuditEvents to a writer, normally a FileRotator.
type AuditLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// DefaultAuditLogPath returns $XDG_STATE_HOME/autotyped/audit.log.
func DefaultAuditLogPath() string {
	return filepath.Join(stateDir(), "audit.log")
}

// OpenAuditLog opens a rotating audit log at path.
func OpenAuditLog(path string, maxSizeMB int64, maxBackups int) (*AuditLogger, error) {
	r, err := NewFileRotator(path, maxSizeMB, maxBackups, true)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{w: r, closer: r, now: time.Now}, nil
}

// NewAuditLogger writes audit records to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{w: w, now: time.Now}
}

// Log writes event, filling in the timestamp and run id when unset.
// A nil AuditLogger is valid and drops everything.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.RunID == "" {
		event.RunID = RunIDFromContext(ctx)
	}
	for k := range event.Details {
		if IsSensitiveKey(k) {
			event.Details[k] = Redacted
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if _, err := a.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogRun records the outcome of one auto-type run.
func (a *AuditLogger) LogRun(ctx context.Context, entryID, entryTitle, windowTitle string, obfuscated bool, runErr error) error {
	ev := AuditEvent{
		Type:        AuditRun,
		EntryID:     entryID,
		EntryTitle:  entryTitle,
		WindowTitle: windowTitle,
		Obfuscated:  obfuscated,
		Result:      ResultSuccess,
	}
	if runErr != nil {
		ev.Result = ResultFailure
		ev.Error = runErr.Error()
	}
	return a.Log(ctx, ev)
}

// LogWindowMismatch records a run abandoned because focus moved.
func (a *AuditLogger) LogWindowMismatch(ctx context.Context, entryTitle, wantTitle, gotTitle string) error {
	return a.Log(ctx, AuditEvent{
		Type:        AuditWindowMismatch,
		EntryTitle:  entryTitle,
		WindowTitle: wantTitle,
		Result:      ResultAborted,
		Details:     map[string]any{"focused_title": gotTitle},
	})
}

// Close closes the underlying file when the logger owns one.
func (a *AuditLogger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
