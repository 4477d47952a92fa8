// Package hotkey binds a global key chord to a callback.
package hotkey

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

// ErrUnsupported is returned when the binary was built without global
// keyboard hooks.
var ErrUnsupported = errors.New("hotkey: global hooks not compiled in (build with -tags gohook)")

// ErrEmptyChord is returned for a chord with no keys.
var ErrEmptyChord = errors.New("hotkey: empty chord")

var aliases = map[string]string{
	"control": "ctrl",
	"option":  "alt",
	"meta":    "cmd",
	"super":   "cmd",
	"win":     "cmd",
	"command": "cmd",
}

// Normalize lowercases key names and maps common aliases onto the names
// the hook library understands.
func Normalize(chord []string) []string {
	out := make([]string, 0, len(chord))
	for _, k := range chord {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if a, ok := aliases[k]; ok {
			k = a
		}
		out = append(out, k)
	}
	return out
}

// Listen calls fn each time chord is pressed until ctx is done. fn runs on
// its own goroutine; presses while it is still running are dropped.
func Listen(ctx context.Context, chord []string, fn func(context.Context)) error {
	keys := Normalize(chord)
	if len(keys) == 0 {
		return ErrEmptyChord
	}
	return listen(ctx, keys, exclusive(ctx, fn))
}

// exclusive wraps fn so at most one call is in flight.
func exclusive(ctx context.Context, fn func(context.Context)) func() bool {
	var busy atomic.Bool
	return func() bool {
		if !busy.CompareAndSwap(false, true) {
			return false
		}
		go func() {
			defer busy.Store(false)
			fn(ctx)
		}()
		return true
	}
}
