//go:build gohook

package hotkey

import (
	"context"
	"errors"

	hook "github.com/robotn/gohook"
)

func listen(ctx context.Context, keys []string, fire func() bool) error {
	hook.Register(hook.KeyDown, keys, func(hook.Event) { fire() })
	done := hook.Process(hook.Start())
	select {
	case <-ctx.Done():
		hook.End()
		<-done
		return nil
	case <-done:
		return errors.New("hotkey: keyboard hook stopped")
	}
}
