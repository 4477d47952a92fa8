//go:build robotgo

package platform

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-vgo/robotgo"
)

func init() {
	backends["robotgo"] = func(opts Options) (Platform, error) {
		return NewRobotgo(opts.AppWindowID, opts.AppWindowTitle)
	}
}

// Robotgo drives the desktop through robotgo. It works where xdotool does
// not (macOS, Windows) at the cost of cgo. Windows are identified by the
// owning process id, so two windows of one process share an identity.
type Robotgo struct {
	appPID   int
	appTitle string
}

// NewRobotgo returns a robotgo backend. appPID, when set, is the process
// id of the application's own window.
func NewRobotgo(appPID, appTitle string) (*Robotgo, error) {
	r := &Robotgo{appTitle: appTitle}
	if appPID != "" {
		pid, err := strconv.Atoi(appPID)
		if err != nil {
			return nil, fmt.Errorf("platform: robotgo app_window_id must be a pid: %w", err)
		}
		r.appPID = pid
	}
	return r, nil
}

// ActiveWindow implements Platform.
func (r *Robotgo) ActiveWindow(ctx context.Context) (WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return WindowInfo{}, err
	}
	pid := robotgo.GetPid()
	if pid <= 0 {
		return WindowInfo{}, fmt.Errorf("platform: no active window")
	}
	return WindowInfo{ID: strconv.Itoa(pid), Title: robotgo.GetTitle()}, nil
}

// IsAppFocused implements Platform.
func (r *Robotgo) IsAppFocused(ctx context.Context) bool {
	if r.appPID == 0 && r.appTitle == "" {
		return false
	}
	win, err := r.ActiveWindow(ctx)
	if err != nil {
		return false
	}
	if r.appPID != 0 {
		return win.ID == strconv.Itoa(r.appPID)
	}
	return win.Title == r.appTitle
}

func (r *Robotgo) appWindow(ctx context.Context) int {
	if r.appPID != 0 {
		return r.appPID
	}
	if r.IsAppFocused(ctx) {
		return robotgo.GetPid()
	}
	return 0
}

// HideApp implements Platform.
func (r *Robotgo) HideApp(ctx context.Context) error {
	if pid := r.appWindow(ctx); pid != 0 {
		robotgo.MinWindow(pid)
	}
	return nil
}

// ShowMainWindow implements Platform.
func (r *Robotgo) ShowMainWindow(ctx context.Context) error {
	if r.appPID != 0 {
		robotgo.ActivePid(r.appPID)
	}
	return nil
}

// Inject implements Platform.
func (r *Robotgo) Inject(ctx context.Context, a Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Kind == TypeText {
		robotgo.TypeStr(a.Text)
		return nil
	}
	key, ok := RobotgoKey(a.Key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, a.Key)
	}
	switch a.Kind {
	case KeyPress:
		return robotgo.KeyTap(key)
	case KeyDown:
		return robotgo.KeyToggle(key, "down")
	case KeyUp:
		return robotgo.KeyToggle(key, "up")
	}
	return fmt.Errorf("platform: unsupported action %s", a.Kind)
}

var _ Platform = (*Robotgo)(nil)
