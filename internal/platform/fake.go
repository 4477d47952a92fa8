package platform

import (
	"context"
	"sync"
)

// Fake is a scriptable Platform for tests. It records every call, answers
// ActiveWindow from a queue and can fail injection on demand.
type Fake struct {
	mu sync.Mutex

	// Windows answers successive ActiveWindow calls. The last element is
	// repeated once the queue is drained.
	Windows []WindowInfo
	// WindowErr, when set, is returned by ActiveWindow.
	WindowErr error

	AppFocused bool
	HideErr    error
	ShowErr    error

	// FailAt makes the Nth Inject call (1-based) return InjectErr.
	FailAt    int
	InjectErr error

	// OnInject runs before each Inject is recorded.
	OnInject func(Action)

	calls   []string
	actions []Action
	buf     *Buffer
}

// NewFake returns a Fake whose active window is win.
func NewFake(win ...WindowInfo) *Fake {
	return &Fake{Windows: win, buf: NewBuffer()}
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

// ActiveWindow implements Platform.
func (f *Fake) ActiveWindow(context.Context) (WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ActiveWindow")
	if f.WindowErr != nil {
		return WindowInfo{}, f.WindowErr
	}
	switch len(f.Windows) {
	case 0:
		return WindowInfo{}, nil
	case 1:
		return f.Windows[0], nil
	}
	w := f.Windows[0]
	f.Windows = f.Windows[1:]
	return w, nil
}

// IsAppFocused implements Platform.
func (f *Fake) IsAppFocused(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("IsAppFocused")
	return f.AppFocused
}

// HideApp implements Platform.
func (f *Fake) HideApp(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("HideApp")
	if f.HideErr == nil {
		f.AppFocused = false
	}
	return f.HideErr
}

// ShowMainWindow implements Platform.
func (f *Fake) ShowMainWindow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ShowMainWindow")
	if f.ShowErr == nil {
		f.AppFocused = true
	}
	return f.ShowErr
}

// Inject implements Platform.
func (f *Fake) Inject(ctx context.Context, a Action) error {
	f.mu.Lock()
	hook := f.OnInject
	f.mu.Unlock()
	if hook != nil {
		hook(a)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Inject")
	if err := ctx.Err(); err != nil {
		return err
	}
	n := 0
	for _, c := range f.calls {
		if c == "Inject" {
			n++
		}
	}
	if f.FailAt > 0 && n == f.FailAt {
		return f.InjectErr
	}
	f.actions = append(f.actions, a)
	if f.buf == nil {
		f.buf = NewBuffer()
	}
	f.buf.Apply(a)
	return nil
}

// Calls returns the method names invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Actions returns the successfully injected actions.
func (f *Fake) Actions() []Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Action(nil), f.actions...)
}

// Typed returns what the injected actions left in a text field.
func (f *Fake) Typed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buf == nil {
		return ""
	}
	return f.buf.String()
}

// Buffer exposes the simulated text field.
func (f *Fake) Buffer() *Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buf == nil {
		f.buf = NewBuffer()
	}
	return f.buf
}

var _ Platform = (*Fake)(nil)
