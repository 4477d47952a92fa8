package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{" ERROR ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError != (err != nil) {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", test.input, err, test.hasError)
			}
			if level != test.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", test.input, level, test.expected)
			}
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		got, err := ParseLevel(LevelString(l))
		if err != nil || got != l {
			t.Errorf("round trip of %v gave %v, %v", l, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"totp_code", true},
		{"otp", true},
		{"db_passphrase", true},
		{"entry_title", false},
		{"window_url", false},
		{"component", false},
		{"ops", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRedactionInOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelDebug, Format: FormatText, Component: "test"})

	l.Info("resolved", "password", "hunter2", "entry_title", "GitHub")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked into log: %s", out)
	}
	if !strings.Contains(out, Redacted) || !strings.Contains(out, "GitHub") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("component attribute missing: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelInfo, Format: FormatJSON})

	l.WithComponent("runner").WithRunID("r-1").Info("typed", "ops", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["component"] != "runner" || rec["run_id"] != "r-1" || rec["ops"] != float64(3) {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: LevelWarn})
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("level filter not applied: %s", buf.String())
	}
}

func TestRunIDContext(t *testing.T) {
	if RunIDFromContext(nil) != "" { //nolint:staticcheck
		t.Error("nil context should have no run id")
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Error("empty context should have no run id")
	}
	ctx := ContextWithRunID(context.Background(), "abc")
	if got := RunIDFromContext(ctx); got != "abc" {
		t.Errorf("RunIDFromContext = %q", got)
	}

	var buf bytes.Buffer
	NewWithWriter(&buf, nil).WithContext(ctx).Info("x")
	if !strings.Contains(buf.String(), "run_id=abc") {
		t.Errorf("run id not attached: %s", buf.String())
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autotyped.log")
	l, err := New(&Config{Level: LevelInfo, Output: "file", FilePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hello")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	r, err := NewFileRotator(path, 1, 2, false)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	// Shrink the limit so a few writes force rotation.
	r.maxBytes = 64

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 6; i++ {
		time.Sleep(2 * time.Millisecond)
		if _, err := r.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	backups, err := r.Backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 backups after pruning, got %d: %v", len(backups), backups)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 64 {
		t.Errorf("current file too large: %d", info.Size())
	}
}

func TestFileRotatorCompress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.log")
	r, err := NewFileRotator(path, 1, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	r.maxBytes = 10
	r.Write([]byte("0123456789"))
	r.Write([]byte("abc"))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	backups, _ := r.Backups()
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".gz") {
		t.Errorf("expected one gzip backup, got %v", backups)
	}
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	ctx := ContextWithRunID(context.Background(), "run-9")
	if err := a.LogRun(ctx, "e1", "GitHub", "GitHub - Sign in", true, nil); err != nil {
		t.Fatal(err)
	}
	if err := a.LogRun(ctx, "e1", "GitHub", "GitHub - Sign in", false, errors.New("xdotool: exit 1")); err != nil {
		t.Fatal(err)
	}
	if err := a.Log(ctx, AuditEvent{Type: AuditConfigReload, Result: ResultSuccess, Details: map[string]any{"password": "p", "path": "/x"}}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var first, second, third AuditEvent
	for i, dst := range []*AuditEvent{&first, &second, &third} {
		if err := json.Unmarshal([]byte(lines[i]), dst); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
	}
	if first.Type != AuditRun || first.Result != ResultSuccess || !first.Obfuscated || first.RunID != "run-9" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if !first.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	if second.Result != ResultFailure || second.Error != "xdotool: exit 1" {
		t.Errorf("unexpected second event: %+v", second)
	}
	if third.Details["password"] != Redacted || third.Details["path"] != "/x" {
		t.Errorf("details not redacted: %v", third.Details)
	}
}

func TestNilAuditLogger(t *testing.T) {
	var a *AuditLogger
	if err := a.LogRun(context.Background(), "", "", "", false, nil); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestOpenAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a, err := OpenAuditLog(path, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	a.LogWindowMismatch(context.Background(), "GitHub", "GitHub - Sign in", "Terminal")
	a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"type":"window_mismatch"`) || !strings.Contains(string(data), `"result":"aborted"`) {
		t.Errorf("unexpected audit file: %s", data)
	}
}
