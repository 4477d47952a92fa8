package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"autotyped/internal/autotype"
	"autotyped/internal/config"
	"autotyped/internal/entry"
	"autotyped/internal/logging"
	"autotyped/internal/notify"
	"autotyped/internal/picker"
	"autotyped/internal/platform"
	"autotyped/internal/store"
)

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Output
	lc.FilePath = cfg.FilePath
	lc.MaxSizeMB = int64(cfg.MaxSizeMB)
	lc.MaxBackups = cfg.MaxBackups
	lc.Compress = cfg.Compress
	return logging.New(lc)
}

func openStore(cfg config.StoreConfig) (*store.Store, error) {
	return store.Open(cfg.Path, store.Options{
		BusyTimeout: time.Duration(cfg.BusyTimeoutMs) * time.Millisecond,
		KDF: store.KDFParams{
			Time:      cfg.KDFTime,
			MemoryKiB: cfg.KDFMemoryKiB,
			Threads:   cfg.KDFThreads,
		},
	})
}

type autoTypeDeps struct {
	platform platform.Platform
	provider entry.Provider
	log      *logging.Logger
	audit    *logging.AuditLogger
	lock     func(context.Context) error
}

func newPlatform(cfg config.PlatformConfig) (platform.Platform, error) {
	p, err := platform.New(platform.Options{
		Backend:        cfg.Backend,
		XdotoolPath:    cfg.XdotoolPath,
		AppWindowID:    cfg.AppWindowID,
		AppWindowTitle: cfg.AppWindowTitle,
	})
	if err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}
	return p, nil
}

// newAutoType builds the picker and notifier named by cfg, and the
// platform unless deps carries one, and wires them into an orchestrator
// over deps.provider.
func newAutoType(cfg *config.Config, deps autoTypeDeps) (*autotype.AutoType, error) {
	p := deps.platform
	if p == nil {
		var err error
		if p, err = newPlatform(cfg.Platform); err != nil {
			return nil, err
		}
	}
	pk, err := picker.New(picker.Options{Kind: cfg.Picker.Kind, Command: cfg.Picker.Command})
	if err != nil {
		return nil, err
	}
	n := notify.New(cfg.Notify.Backend, cfg.Notify.AppName,
		time.Duration(cfg.Notify.TimeoutMs)*time.Millisecond, deps.log)

	return autotype.New(autotype.Options{
		Platform:      p,
		Provider:      deps.provider,
		Picker:        pk,
		Notifier:      n,
		Logger:        deps.log,
		Audit:         deps.audit,
		Config:        cfg.AutoType,
		PickerTimeout: time.Duration(cfg.Picker.TimeoutSec) * time.Second,
		LockWorkspace: deps.lock,
	})
}

func parsePermissions(s string) (uint32, error) {
	if s == "" {
		return 0o600, nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid socket permissions %q", s)
	}
	return uint32(v), nil
}
