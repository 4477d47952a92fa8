// Package platform is the boundary between auto-type and the desktop: it
// reports the focused window, hides and shows the application, and
// injects keyboard input.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// ErrUnavailable means the backend cannot reach a display.
	ErrUnavailable = errors.New("platform: no usable display backend")

	// ErrUnknownKey means the backend has no native code for a key name.
	ErrUnknownKey = errors.New("platform: unknown key")
)

// WindowInfo identifies the window auto-type was started from. It is
// captured once per trigger and not modified afterwards.
type WindowInfo struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// IsZero reports whether nothing was captured.
func (w WindowInfo) IsZero() bool { return w == WindowInfo{} }

// SameTarget reports whether o still identifies the window w was captured
// from. Only the id and url take part; titles change while typing.
func (w WindowInfo) SameTarget(o WindowInfo) bool {
	return w.ID == o.ID && w.URL == o.URL
}

func (w WindowInfo) String() string {
	return fmt.Sprintf("window{id=%q title=%q url=%q}", w.ID, w.Title, w.URL)
}

var titleURL = regexp.MustCompile(`https?://(www\.)?[-a-zA-Z0-9@:%._+~#=]{2,256}\.[a-z]{2,4}\b([-a-zA-Z0-9@:%_+.~#?&/=]*)`)

// URLFromTitle returns the first http(s) URL in a window title. Browsers
// without an accessible address bar often put the URL there.
func URLFromTitle(title string) string {
	return titleURL.FindString(title)
}

// WithTitleURL fills URL from the title when the backend reported none.
func (w WindowInfo) WithTitleURL() WindowInfo {
	if w.URL == "" && w.Title != "" {
		w.URL = URLFromTitle(w.Title)
	}
	return w
}

// ActionKind tags an Action.
type ActionKind uint8

const (
	// KeyPress taps a key.
	KeyPress ActionKind = iota + 1
	// KeyDown holds a key until the matching KeyUp.
	KeyDown
	// KeyUp releases a held key.
	KeyUp
	// TypeText delivers literal text.
	TypeText
)

func (k ActionKind) String() string {
	switch k {
	case KeyPress:
		return "press"
	case KeyDown:
		return "down"
	case KeyUp:
		return "up"
	case TypeText:
		return "text"
	}
	return "unknown"
}

// Modifier key names used in KeyDown/KeyUp actions.
const (
	ModShift = "shift"
	ModCtrl  = "ctrl"
	ModAlt   = "alt"
	ModMeta  = "meta"
)

// Action is one input primitive. Key holds a canonical key name or a
// modifier name; Text holds literal text for TypeText.
type Action struct {
	Kind ActionKind
	Key  string
	Text string
}

// Press, Down, Up and Type build actions.
func Press(key string) Action { return Action{Kind: KeyPress, Key: key} }
func Down(key string) Action  { return Action{Kind: KeyDown, Key: key} }
func Up(key string) Action    { return Action{Kind: KeyUp, Key: key} }
func Type(text string) Action { return Action{Kind: TypeText, Text: text} }

// String renders the action with literal text masked.
func (a Action) String() string {
	if a.Kind == TypeText {
		return "text:" + strings.Repeat("*", len([]rune(a.Text)))
	}
	return a.Kind.String() + ":" + a.Key
}

// Platform is the desktop capability auto-type runs against.
type Platform interface {
	// ActiveWindow reports the currently focused window.
	ActiveWindow(ctx context.Context) (WindowInfo, error)

	// IsAppFocused reports whether the application's own window has focus.
	IsAppFocused(ctx context.Context) bool

	// HideApp hides or minimizes the application window.
	HideApp(ctx context.Context) error

	// ShowMainWindow raises the application window.
	ShowMainWindow(ctx context.Context) error

	// Inject delivers one input primitive to the focused window.
	Inject(ctx context.Context, a Action) error
}

// Prober is implemented by backends that can check their own
// prerequisites without side effects.
type Prober interface {
	Probe(ctx context.Context) error
}

// Options configures New.
type Options struct {
	// Backend is "auto", "xdotool" or "null".
	Backend        string
	XdotoolPath    string
	AppWindowID    string
	AppWindowTitle string
}

// backends holds optional backends compiled in with build tags.
var backends = map[string]func(Options) (Platform, error){}

// New returns the backend named by opts. "auto" picks xdotool on an X11
// display and fails otherwise.
func New(opts Options) (Platform, error) {
	switch opts.Backend {
	case "null":
		return Null{}, nil
	case "xdotool":
		return NewXdotool(opts.XdotoolPath, opts.AppWindowID, opts.AppWindowTitle), nil
	case "", "auto":
		if DetectDisplay() != "x11" {
			if f, ok := backends["robotgo"]; ok {
				return f(opts)
			}
			return nil, ErrUnavailable
		}
		return NewXdotool(opts.XdotoolPath, opts.AppWindowID, opts.AppWindowTitle), nil
	}
	if f, ok := backends[opts.Backend]; ok {
		return f(opts)
	}
	if opts.Backend == "robotgo" {
		return nil, fmt.Errorf("platform: robotgo backend not compiled in (build with -tags robotgo)")
	}
	return nil, fmt.Errorf("platform: unknown backend %q", opts.Backend)
}

// DetectDisplay returns "x11", "wayland" or "unknown". XWayland counts as x11.
func DetectDisplay() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if os.Getenv("DISPLAY") != "" {
			return "x11"
		}
		return "wayland"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}
