package platform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// keysyms maps canonical key names to X keysym names.
var keysyms = map[string]string{
	"TAB":        "Tab",
	"ENTER":      "Return",
	"SPACE":      "space",
	"BACKSPACE":  "BackSpace",
	"DELETE":     "Delete",
	"INSERT":     "Insert",
	"ESC":        "Escape",
	"UP":         "Up",
	"DOWN":       "Down",
	"LEFT":       "Left",
	"RIGHT":      "Right",
	"HOME":       "Home",
	"END":        "End",
	"PGUP":       "Prior",
	"PGDN":       "Next",
	"CAPSLOCK":   "Caps_Lock",
	"NUMLOCK":    "Num_Lock",
	"SCROLLLOCK": "Scroll_Lock",
	"PRTSC":      "Print",
	"BREAK":      "Break",
	"APPS":       "Menu",
	"WIN":        "Super_L",
	"RWIN":       "Super_R",
	"ADD":        "KP_Add",
	"SUBTRACT":   "KP_Subtract",
	"MULTIPLY":   "KP_Multiply",
	"DIVIDE":     "KP_Divide",

	ModShift: "shift",
	ModCtrl:  "ctrl",
	ModAlt:   "alt",
	ModMeta:  "super",
}

// Keysym returns the X keysym for a canonical key or modifier name.
func Keysym(key string) (string, bool) {
	if s, ok := keysyms[key]; ok {
		return s, true
	}
	if rest, ok := strings.CutPrefix(key, "NUMPAD"); ok && len(rest) == 1 && rest[0] >= '0' && rest[0] <= '9' {
		return "KP_" + rest, true
	}
	if len(key) >= 2 && key[0] == 'F' && key[1] >= '1' && key[1] <= '9' {
		return key, true
	}
	return "", false
}

// commandFunc runs the tool with args, feeding stdin, and returns stdout.
type commandFunc func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, args[0], err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return out, nil
}

// Xdotool drives an X11 session through the xdotool command.
type Xdotool struct {
	path     string
	appID    string
	appTitle string
	run      commandFunc
}

// NewXdotool returns an X11 backend. appID or appTitle identify the
// application's own window; with neither, IsAppFocused is always false
// and HideApp does nothing.
func NewXdotool(path, appID, appTitle string) *Xdotool {
	if path == "" {
		path = "xdotool"
	}
	return &Xdotool{path: path, appID: appID, appTitle: appTitle, run: execCommand}
}

func (x *Xdotool) xdotool(ctx context.Context, args ...string) (string, error) {
	out, err := x.run(ctx, nil, x.path, args...)
	return strings.TrimSpace(string(out)), err
}

// ActiveWindow implements Platform. X11 exposes no URL; callers fall back
// to WithTitleURL.
func (x *Xdotool) ActiveWindow(ctx context.Context) (WindowInfo, error) {
	id, err := x.xdotool(ctx, "getactivewindow")
	if err != nil {
		return WindowInfo{}, err
	}
	info := WindowInfo{ID: id}
	if title, err := x.xdotool(ctx, "getwindowname", id); err == nil {
		info.Title = title
	}
	return info, nil
}

// IsAppFocused implements Platform.
func (x *Xdotool) IsAppFocused(ctx context.Context) bool {
	if x.appID == "" && x.appTitle == "" {
		return false
	}
	win, err := x.ActiveWindow(ctx)
	if err != nil {
		return false
	}
	if x.appID != "" {
		return win.ID == x.appID
	}
	return win.Title == x.appTitle
}

func (x *Xdotool) appWindow(ctx context.Context) (string, error) {
	if x.appID != "" {
		return x.appID, nil
	}
	if x.appTitle == "" {
		return "", nil
	}
	out, err := x.xdotool(ctx, "search", "--limit", "1", "--name", "^"+regexp.QuoteMeta(x.appTitle)+"$")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.SplitN(out, "\n", 2)[0]), nil
}

// HideApp implements Platform.
func (x *Xdotool) HideApp(ctx context.Context) error {
	id, err := x.appWindow(ctx)
	if err != nil || id == "" {
		return err
	}
	_, err = x.xdotool(ctx, "windowminimize", "--sync", id)
	return err
}

// ShowMainWindow implements Platform.
func (x *Xdotool) ShowMainWindow(ctx context.Context) error {
	id, err := x.appWindow(ctx)
	if err != nil || id == "" {
		return err
	}
	_, err = x.xdotool(ctx, "windowactivate", "--sync", id)
	return err
}

// Inject implements Platform. Text is passed on stdin so it never shows
// up in a process listing.
func (x *Xdotool) Inject(ctx context.Context, a Action) error {
	if a.Kind == TypeText {
		_, err := x.run(ctx, []byte(a.Text), x.path, "type", "--delay", "0", "--file", "-")
		return err
	}

	sym, ok := Keysym(a.Key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, a.Key)
	}
	var verb string
	switch a.Kind {
	case KeyPress:
		verb = "key"
	case KeyDown:
		verb = "keydown"
	case KeyUp:
		verb = "keyup"
	default:
		return fmt.Errorf("platform: unsupported action %s", a.Kind)
	}
	_, err := x.xdotool(ctx, verb, sym)
	return err
}

var _ Platform = (*Xdotool)(nil)

// Probe checks that xdotool runs and can reach the display.
func (x *Xdotool) Probe(ctx context.Context) error {
	if _, err := x.xdotool(ctx, "getdisplaygeometry"); err != nil {
		return fmt.Errorf("%s: %w", x.path, err)
	}
	return nil
}
