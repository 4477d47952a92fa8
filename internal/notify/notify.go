// Package notify shows user-visible messages for failed auto-type runs.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"autotyped/internal/logging"
)

// Notifier delivers a message to the user.
type Notifier interface {
	Error(ctx context.Context, title, body string) error
	Info(ctx context.Context, title, body string) error
}

// freedesktop notification service.
const (
	dbusDest   = "org.freedesktop.Notifications"
	dbusPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusNotify = "org.freedesktop.Notifications.Notify"
)

const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus posts desktop notifications on the session bus.
type DBus struct {
	obj     caller
	appName string
	timeout time.Duration

	mu     sync.Mutex
	lastID uint32
}

// NewDBus connects to the session bus.
func NewDBus(appName string, timeout time.Duration) (*DBus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBus{
		obj:     conn.Object(dbusDest, dbusPath),
		appName: appName,
		timeout: timeout,
	}, nil
}

// Error implements Notifier.
func (d *DBus) Error(ctx context.Context, title, body string) error {
	return d.notify(ctx, title, body, urgencyCritical)
}

// Info implements Notifier.
func (d *DBus) Info(ctx context.Context, title, body string) error {
	return d.notify(ctx, title, body, urgencyNormal)
}

func (d *DBus) notify(ctx context.Context, title, body string, urgency byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	call := d.obj.CallWithContext(ctx, dbusNotify, 0,
		d.appName, d.lastID, "dialog-password", title, body,
		[]string{}, hints, int32(d.timeout/time.Millisecond))
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	// Replace the previous bubble instead of stacking them.
	var id uint32
	if err := call.Store(&id); err == nil {
		d.lastID = id
	}
	return nil
}

// Log writes messages to a logger. It is the fallback when no
// notification service is reachable.
type Log struct {
	Logger *logging.Logger
}

// Error implements Notifier.
func (l Log) Error(_ context.Context, title, body string) error {
	l.logger().Error(title, "message", body)
	return nil
}

// Info implements Notifier.
func (l Log) Info(_ context.Context, title, body string) error {
	l.logger().Info(title, "message", body)
	return nil
}

func (l Log) logger() *logging.Logger {
	if l.Logger == nil {
		return logging.Default()
	}
	return l.Logger
}

// Fallback tries Primary and, if it fails, Secondary.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

// Error implements Notifier.
func (f Fallback) Error(ctx context.Context, title, body string) error {
	if err := f.Primary.Error(ctx, title, body); err != nil {
		return f.Secondary.Error(ctx, title, body)
	}
	return nil
}

// Info implements Notifier.
func (f Fallback) Info(ctx context.Context, title, body string) error {
	if err := f.Primary.Info(ctx, title, body); err != nil {
		return f.Secondary.Info(ctx, title, body)
	}
	return nil
}

// New returns the notifier for backend ("dbus" or "log"). A dbus backend
// that cannot connect degrades to logging.
func New(backend, appName string, timeout time.Duration, log *logging.Logger) Notifier {
	fallback := Log{Logger: log}
	if backend != "dbus" {
		return fallback
	}
	d, err := NewDBus(appName, timeout)
	if err != nil {
		if log != nil {
			log.Warn("desktop notifications unavailable, using log", "error", err)
		}
		return fallback
	}
	return Fallback{Primary: d, Secondary: fallback}
}

// Message is one recorded notification.
type Message struct {
	Level string
	Title string
	Body  string
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

// Error implements Notifier.
func (r *Recorder) Error(_ context.Context, title, body string) error {
	r.add("error", title, body)
	return nil
}

// Info implements Notifier.
func (r *Recorder) Info(_ context.Context, title, body string) error {
	r.add("info", title, body)
	return nil
}

func (r *Recorder) add(level, title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{Level: level, Title: title, Body: body})
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}
