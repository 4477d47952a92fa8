package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"autotyped/internal/autotype"
	"autotyped/internal/config"
	"autotyped/internal/health"
	"autotyped/internal/hotkey"
	"autotyped/internal/ipc"
	"autotyped/internal/logging"
	"autotyped/internal/security"
	"autotyped/internal/store"
)

// Daemon owns the store, the orchestrator and the control socket.
type Daemon struct {
	loader   *config.Loader
	log      *logging.Logger
	audit    *logging.AuditLogger
	store    *store.Store
	autoType *autotype.AutoType
	server   *ipc.Server

	cancel context.CancelFunc
}

// NewDaemon builds every component from the configuration loader has read.
func NewDaemon(loader *config.Loader, log *logging.Logger) (*Daemon, error) {
	cfg := loader.Config()
	d := &Daemon{loader: loader, log: log}

	audit, err := logging.OpenAuditLog(cfg.Logging.AuditPath, int64(cfg.Logging.MaxSizeMB), cfg.Logging.MaxBackups)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	d.audit = audit

	d.store, err = openStore(cfg.Store)
	if err != nil {
		audit.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	plat, err := newPlatform(cfg.Platform)
	if err != nil {
		d.store.Close()
		audit.Close()
		return nil, err
	}

	d.autoType, err = newAutoType(cfg, autoTypeDeps{
		platform: plat,
		provider: d.store,
		log:      log,
		audit:    audit,
		lock: func(context.Context) error {
			d.store.Lock()
			return nil
		},
	})
	if err != nil {
		d.store.Close()
		audit.Close()
		return nil, err
	}

	perm, err := parsePermissions(cfg.IPC.Permissions)
	if err != nil {
		d.store.Close()
		audit.Close()
		return nil, err
	}
	serverCfg := ipc.DefaultServerConfig(cfg.IPC.SocketPath)
	serverCfg.Version = Version
	serverCfg.Permissions = os.FileMode(perm)
	serverCfg.MaxConnections = cfg.IPC.MaxConnections
	serverCfg.IdleTimeout = time.Duration(cfg.IPC.TimeoutSec) * time.Second
	serverCfg.RequireSameUser = cfg.IPC.RequireSameUser
	serverCfg.Logger = log
	serverCfg.Audit = audit

	checks := health.NewChecker()
	checks.RegisterFunc("store", true, health.PingCheck(d.store.Ping))
	checks.RegisterFunc("platform", true, health.PlatformCheck(plat))
	checks.RegisterFunc("audit_log", false, health.WritableDirCheck(cfg.Logging.AuditPath))
	checks.RegisterFunc("permissions", false, health.FuncCheck("store and socket directories are private",
		privateDirs(filepath.Dir(cfg.Store.Path), filepath.Dir(cfg.IPC.SocketPath))))

	var server *ipc.Server
	handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version:  Version,
		AutoType: d.autoType,
		Vault:    d.store,
		Logger:   log,
		Audit:    audit,
		Clients:  func() int { return server.ClientCount() },
		Health:   checks,
	})
	server = ipc.NewServer(serverCfg, handler)
	d.server = server

	loader.OnChange(d.reload)
	return d, nil
}

// privateDirs returns a check that fails while any of dirs is group or
// world accessible.
func privateDirs(dirs ...string) func() error {
	return func() error {
		var errs []error
		for _, dir := range dirs {
			errs = append(errs, security.VerifyNotShared(dir))
		}
		return errors.Join(errs...)
	}
}

// Start opens the socket and starts watching the store and config file.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)
	cfg := d.loader.Config()

	if cfg.Store.WatchChanges {
		if err := d.store.Watch(ctx); err != nil {
			d.log.Warn("store change watching disabled", "error", err)
		}
	}
	go d.autoType.WatchChanges(ctx, d.store.Changes())

	if err := d.loader.Watch(); err != nil {
		d.log.Warn("config hot reload disabled", "error", err)
	}
	go d.reportReloadErrors(ctx)

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if len(cfg.AutoType.Hotkey) > 0 {
		go d.listenHotkey(ctx, cfg.AutoType.Hotkey)
	}
	d.audit.Log(ctx, logging.AuditEvent{
		Type:    logging.AuditStartup,
		Result:  logging.ResultSuccess,
		Details: map[string]any{"version": Version, "socket": d.server.SocketPath()},
	})
	return nil
}

func (d *Daemon) reload(old, cfg *config.Config) {
	d.autoType.SetConfig(cfg.AutoType)
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != old.Logging.Level {
		d.log.Info("log level changes apply after restart", "level", logging.LevelString(level))
	}
	if cfg.IPC.SocketPath != old.IPC.SocketPath || cfg.Store.Path != old.Store.Path {
		d.log.Warn("socket and store paths change only after restart")
	}
	if !slices.Equal(cfg.AutoType.Hotkey, old.AutoType.Hotkey) {
		d.log.Warn("hotkey changes apply after restart")
	}
	d.audit.Log(context.Background(), logging.AuditEvent{
		Type:    logging.AuditConfigReload,
		Result:  logging.ResultSuccess,
		Details: map[string]any{"path": d.loader.Path()},
	})
	d.log.Info("configuration reloaded", "path", d.loader.Path())
}

func (d *Daemon) listenHotkey(ctx context.Context, chord []string) {
	d.log.Info("global hotkey bound", "keys", chord)
	err := hotkey.Listen(ctx, chord, func(ctx context.Context) {
		outcome, err := d.autoType.HandleEvent(ctx, autotype.Event{})
		if err != nil {
			d.log.Debug("hotkey trigger", "outcome", outcome, "error", err)
		}
	})
	if err != nil {
		d.log.Warn("global hotkey disabled", "error", err)
	}
}

func (d *Daemon) reportReloadErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-d.loader.Errors():
			d.log.Error("configuration reload failed", "error", err)
		}
	}
}

// Stop closes the socket and the store.
func (d *Daemon) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	err := d.server.Stop()
	d.loader.Close()
	d.store.Close()
	d.audit.Log(context.Background(), logging.AuditEvent{Type: logging.AuditShutdown, Result: logging.ResultSuccess})
	d.audit.Close()
	return err
}

// SocketPath returns the control socket path.
func (d *Daemon) SocketPath() string { return d.server.SocketPath() }

func cmdDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	foreground := fs.Bool("v", false, "also log to stderr")
	fs.Parse(args)

	path := resolvedConfigPath()
	loader := config.NewLoader(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.DefaultConfig().Save(path); err != nil {
			fatalf("Error creating config: %v", err)
		}
	}
	cfg, err := loader.Load()
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("Error: %v", err)
	}
	logCfg := cfg.Logging
	if *foreground && logCfg.Output == "file" {
		logCfg.Output = "both"
	}
	log, err := newLogger(logCfg)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	d, err := NewDaemon(loader, log)
	if err != nil {
		fatalf("Failed to start daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		d.Stop()
		fatalf("Failed to start daemon: %v", err)
	}
	log.Info("daemon started", "socket", d.SocketPath(), "version", Version, "config", path)

	<-ctx.Done()
	log.Info("shutting down")
	if err := d.Stop(); err != nil {
		log.Error("shutdown", "error", err)
	}
}
