package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotyped/internal/logging"
)

type fakeBus struct {
	method string
	args   []interface{}
	nextID uint32
	err    error
}

func (f *fakeBus) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.method, f.args = method, args
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	f.nextID++
	return &dbus.Call{Body: []interface{}{f.nextID}}
}

func TestDBusNotify(t *testing.T) {
	bus := &fakeBus{}
	d := &DBus{obj: bus, appName: "autotyped", timeout: 5 * time.Second}

	require.NoError(t, d.Error(context.Background(), "Auto-type failed", "field {S:PIN} not found"))
	assert.Equal(t, dbusNotify, bus.method)
	require.Len(t, bus.args, 8)
	assert.Equal(t, "autotyped", bus.args[0])
	assert.Equal(t, uint32(0), bus.args[1])
	assert.Equal(t, "Auto-type failed", bus.args[3])
	assert.Equal(t, int32(5000), bus.args[7])
	hints := bus.args[6].(map[string]dbus.Variant)
	assert.Equal(t, urgencyCritical, hints["urgency"].Value())

	require.NoError(t, d.Info(context.Background(), "again", ""))
	assert.Equal(t, uint32(1), bus.args[1], "second notification replaces the first")
}

func TestFallback(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, &logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON})

	d := &DBus{obj: &fakeBus{err: errors.New("no service")}}
	n := Fallback{Primary: d, Secondary: Log{Logger: log}}
	require.NoError(t, n.Error(context.Background(), "Auto-type failed", "boom"))
	assert.Contains(t, buf.String(), `"msg":"Auto-type failed"`)
	assert.Contains(t, buf.String(), `"message":"boom"`)
}

func TestNewLogBackend(t *testing.T) {
	n := New("log", "autotyped", time.Second, nil)
	assert.IsType(t, Log{}, n)
	assert.NoError(t, n.Info(context.Background(), "hello", "world"))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Error(context.Background(), "a", "b")
	_ = r.Info(context.Background(), "c", "d")
	assert.Equal(t, []Message{{"error", "a", "b"}, {"info", "c", "d"}}, r.Messages())
}
