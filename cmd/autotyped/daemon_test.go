package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotyped/internal/autotype"
	"autotyped/internal/config"
	"autotyped/internal/entry"
	"autotyped/internal/health"
	"autotyped/internal/ipc"
	"autotyped/internal/logging"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Platform.Backend = "null"
	cfg.Picker.Kind = "none"
	cfg.Notify.Backend = "log"
	cfg.AutoType.HideSettleMs = 0
	cfg.AutoType.RedrawDelayMs = 0
	cfg.AutoType.KeyDelayMs = 0
	cfg.Store.Path = filepath.Join(dir, "entries.db")
	cfg.Store.KDFTime = 1
	cfg.Store.KDFMemoryKiB = 8 * 1024
	cfg.Store.KDFThreads = 1
	cfg.Store.WatchChanges = false
	cfg.Logging.AuditPath = filepath.Join(dir, "audit.log")
	cfg.IPC.SocketPath = filepath.Join(dir, "d.sock")

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, cfg.Save(path))
	return cfg, path
}

func startTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	_, path := testConfig(t)
	loader := config.NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	d, err := NewDaemon(loader, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { d.Stop() })
	return d, path
}

func dialDaemon(t *testing.T, d *Daemon) *ipc.IPCClient {
	t.Helper()
	c, err := ipc.Dial(context.Background(), ipc.ClientConfig{SocketPath: d.SocketPath(), ClientName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDaemonLifecycle(t *testing.T) {
	d, _ := startTestDaemon(t)
	c := dialDaemon(t, d)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, st.Version)
	assert.False(t, st.Store.Unlocked)
	assert.Equal(t, health.StatusHealthy, st.Health)
	assert.Len(t, st.HealthCheck, 4)

	// A trigger before the store is open waits for it.
	resp, err := c.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, autotype.OutcomePending, resp.Outcome)
	cancelled, err := c.Blur(ctx)
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.NoError(t, c.Open(ctx, []byte("first passphrase")))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Store.Unlocked)

	require.NoError(t, d.store.Put(ctx, &entry.Entry{
		ID: "e1", Title: "Mail", UserName: "ann", Password: entry.Protect("pw"), AutoTypeEnabled: true,
	}))

	v, err := c.Validate(ctx, ipc.ValidateRequest{EntryID: "e1"})
	require.NoError(t, err)
	assert.True(t, v.Valid)

	run, err := c.Run(ctx, ipc.RunRequest{EntryID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, autotype.OutcomeTyped, run.Outcome)

	require.NoError(t, c.Lock(ctx))
	err = c.Open(ctx, []byte("not it"))
	var re *ipc.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ipc.ErrBadPassphrase, re.Code)

	audit, err := os.ReadFile(filepath.Join(filepath.Dir(d.store.Path()), "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"type":"startup"`)
	assert.Contains(t, string(audit), `"type":"autotype_run"`)
	assert.NotContains(t, string(audit), "first passphrase")
}

func TestDaemonConfigReload(t *testing.T) {
	d, path := startTestDaemon(t)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.AutoType.DefaultSequence = "{PASSWORD}{ENTER}"
	require.NoError(t, cfg.Save(path))
	d.loader.Reload()

	assert.Equal(t, "{PASSWORD}{ENTER}", d.loader.Config().AutoType.DefaultSequence)

	e := &entry.Entry{ID: "x", Title: "x", Password: entry.Protect("pw")}
	require.NoError(t, d.autoType.Validate(context.Background(), e, ""))
}

func TestParsePermissions(t *testing.T) {
	p, err := parsePermissions("")
	require.NoError(t, err)
	assert.EqualValues(t, 0o600, p)

	p, err = parsePermissions("0660")
	require.NoError(t, err)
	assert.EqualValues(t, 0o660, p)

	_, err = parsePermissions("rw")
	assert.Error(t, err)
}

func TestNewAutoTypeRejectsUnknownBackend(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Platform.Backend = "wayland"
	_, err := newAutoType(cfg, autoTypeDeps{provider: entry.NewCollection(), log: logging.Discard()})
	assert.Error(t, err)
}

func TestDaemonReportsSharedDirectories(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	d, _ := startTestDaemon(t)
	c := dialDaemon(t, d)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, st.HealthCheck["permissions"].Status)

	dir := filepath.Dir(d.SocketPath())
	require.NoError(t, os.Chmod(dir, 0o755))
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, st.Health)
	assert.Equal(t, health.StatusDegraded, st.HealthCheck["permissions"].Status)
	assert.Contains(t, st.HealthCheck["permissions"].Error, "0755")
}
