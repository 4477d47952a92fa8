package platform

import "context"

// Null is a headless backend. It reports no window and accepts and drops
// all input, which makes it suitable for dry runs.
type Null struct{}

// ActiveWindow implements Platform.
func (Null) ActiveWindow(context.Context) (WindowInfo, error) { return WindowInfo{}, nil }

// IsAppFocused implements Platform.
func (Null) IsAppFocused(context.Context) bool { return false }

// HideApp implements Platform.
func (Null) HideApp(context.Context) error { return nil }

// ShowMainWindow implements Platform.
func (Null) ShowMainWindow(context.Context) error { return nil }

// Inject implements Platform.
func (Null) Inject(ctx context.Context, _ Action) error { return ctx.Err() }

var _ Platform = Null{}
