//go:build !gohook

package hotkey

import "context"

func listen(context.Context, []string, func() bool) error {
	return ErrUnsupported
}
