package platform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLFromTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"GitHub - https://github.com/login - Firefox", "https://github.com/login"},
		{"http://www.example.org/a?b=c&d=e", "http://www.example.org/a?b=c&d=e"},
		{"Inbox (3) - Mail", ""},
		{"ftp://example.org", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URLFromTitle(tt.title), tt.title)
	}

	w := WindowInfo{ID: "1", Title: "Login https://example.com/x"}.WithTitleURL()
	assert.Equal(t, "https://example.com/x", w.URL)

	w = WindowInfo{Title: "https://example.com", URL: "https://other.org"}.WithTitleURL()
	assert.Equal(t, "https://other.org", w.URL)
}

func TestSameTarget(t *testing.T) {
	a := WindowInfo{ID: "7", Title: "Login", URL: "https://a.com"}
	assert.True(t, a.SameTarget(WindowInfo{ID: "7", Title: "Login - typing", URL: "https://a.com"}))
	assert.False(t, a.SameTarget(WindowInfo{ID: "8", Title: "Login", URL: "https://a.com"}))
	assert.False(t, a.SameTarget(WindowInfo{ID: "7", Title: "Login", URL: "https://b.com"}))
	assert.True(t, WindowInfo{}.IsZero())
}

func TestActionStringMasksText(t *testing.T) {
	assert.Equal(t, "text:***", Type("pw1").String())
	assert.Equal(t, "press:TAB", Press("TAB").String())
	assert.Equal(t, "down:shift", Down(ModShift).String())
}

func TestKeysym(t *testing.T) {
	for key, want := range map[string]string{
		"ENTER": "Return", "PGDN": "Next", "F12": "F12", "NUMPAD4": "KP_4", ModMeta: "super",
	} {
		got, ok := Keysym(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := Keysym("NOPE")
	assert.False(t, ok)
}

func TestBuffer(t *testing.T) {
	b := NewBuffer()
	for _, a := range []Action{
		Type("hello"),
		Press("LEFT"), Press("LEFT"),
		Down(ModShift), Press("LEFT"), Up(ModShift),
		Type("L"),
		Press("END"),
		Press("BACKSPACE"),
		Down(ModCtrl), Type("a"), Up(ModCtrl),
		Press("SPACE"),
	} {
		b.Apply(a)
	}
	assert.Equal(t, "heLl ", b.String())
	assert.Empty(t, b.Selection())
	assert.False(t, b.Held(ModShift))
}

func TestBufferSelectAndOverwrite(t *testing.T) {
	b := NewBuffer()
	b.Apply(Type("x"))
	b.Apply(Type("qz"))
	b.Apply(Down(ModShift))
	b.Apply(Press("LEFT"))
	b.Apply(Press("LEFT"))
	b.Apply(Up(ModShift))
	assert.Equal(t, "qz", b.Selection())
	b.Apply(Type("y"))
	assert.Equal(t, "xy", b.String())
}

type recorded struct {
	stdin string
	args  []string
}

func scripted(out map[string]string, calls *[]recorded) commandFunc {
	return func(_ context.Context, stdin []byte, _ string, args ...string) ([]byte, error) {
		*calls = append(*calls, recorded{stdin: string(stdin), args: args})
		if v, ok := out[args[0]]; ok {
			return []byte(v + "\n"), nil
		}
		if args[0] == "getwindowname" || args[0] == "getactivewindow" {
			return nil, errors.New("no window")
		}
		return nil, nil
	}
}

func TestXdotool(t *testing.T) {
	var calls []recorded
	x := NewXdotool("", "", "autotyped")
	x.run = scripted(map[string]string{
		"getactivewindow": "4242",
		"getwindowname":   "Sign in - https://example.com/login",
		"search":          "99\n100",
	}, &calls)
	ctx := context.Background()

	win, err := x.ActiveWindow(ctx)
	require.NoError(t, err)
	assert.Equal(t, WindowInfo{ID: "4242", Title: "Sign in - https://example.com/login"}, win)
	assert.False(t, x.IsAppFocused(ctx))

	calls = nil
	require.NoError(t, x.HideApp(ctx))
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"search", "--limit", "1", "--name", "^autotyped$"}, calls[0].args)
	assert.Equal(t, []string{"windowminimize", "--sync", "99"}, calls[1].args)

	calls = nil
	require.NoError(t, x.Inject(ctx, Type("s3cret")))
	require.NoError(t, x.Inject(ctx, Down(ModCtrl)))
	require.NoError(t, x.Inject(ctx, Press("TAB")))
	require.NoError(t, x.Inject(ctx, Up(ModCtrl)))
	require.Len(t, calls, 4)
	assert.Equal(t, "s3cret", calls[0].stdin)
	assert.NotContains(t, strings.Join(calls[0].args, " "), "s3cret")
	assert.Equal(t, []string{"keydown", "ctrl"}, calls[1].args)
	assert.Equal(t, []string{"key", "Tab"}, calls[2].args)
	assert.Equal(t, []string{"keyup", "ctrl"}, calls[3].args)

	err = x.Inject(ctx, Press("BOGUS"))
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestXdotoolWithoutAppWindow(t *testing.T) {
	var calls []recorded
	x := NewXdotool("/usr/bin/xdotool", "", "")
	x.run = scripted(nil, &calls)
	require.NoError(t, x.HideApp(context.Background()))
	require.NoError(t, x.ShowMainWindow(context.Background()))
	assert.Empty(t, calls)
	assert.False(t, x.IsAppFocused(context.Background()))
}

func TestNew(t *testing.T) {
	p, err := New(Options{Backend: "null"})
	require.NoError(t, err)
	assert.IsType(t, Null{}, p)

	p, err = New(Options{Backend: "xdotool", AppWindowID: "1"})
	require.NoError(t, err)
	assert.IsType(t, &Xdotool{}, p)

	_, err = New(Options{Backend: "carrier-pigeon"})
	assert.Error(t, err)
	if _, ok := backends["robotgo"]; !ok {
		_, err = New(Options{Backend: "robotgo"})
		assert.ErrorContains(t, err, "-tags robotgo")
	}

	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")
	assert.Equal(t, "wayland", DetectDisplay())
	if _, ok := backends["robotgo"]; !ok {
		_, err = New(Options{Backend: "auto"})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
}

func TestFake(t *testing.T) {
	a := WindowInfo{ID: "1"}
	b := WindowInfo{ID: "2"}
	f := NewFake(a, b)
	ctx := context.Background()

	w, _ := f.ActiveWindow(ctx)
	assert.Equal(t, a, w)
	w, _ = f.ActiveWindow(ctx)
	assert.Equal(t, b, w)
	w, _ = f.ActiveWindow(ctx)
	assert.Equal(t, b, w)

	boom := errors.New("boom")
	f.FailAt, f.InjectErr = 2, boom
	require.NoError(t, f.Inject(ctx, Type("a")))
	assert.ErrorIs(t, f.Inject(ctx, Type("b")), boom)
	require.NoError(t, f.Inject(ctx, Type("c")))
	assert.Equal(t, "ac", f.Typed())
	assert.Len(t, f.Actions(), 2)
}

func TestXdotoolProbe(t *testing.T) {
	var calls []recorded
	x := NewXdotool("", "", "")
	x.run = scripted(map[string]string{"getdisplaygeometry": "1920 1080"}, &calls)
	require.NoError(t, x.Probe(context.Background()))
	assert.Equal(t, []string{"getdisplaygeometry"}, calls[0].args)

	x.run = func(context.Context, []byte, string, ...string) ([]byte, error) {
		return nil, errors.New("Can't open display")
	}
	assert.ErrorContains(t, x.Probe(context.Background()), "xdotool")

	var _ Prober = x
}

func TestRobotgoKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"TAB", "tab", true},
		{"ESC", "escape", true},
		{"PGDN", "pagedown", true},
		{"NUMPAD7", "num7", true},
		{"F12", "f12", true},
		{ModMeta, "cmd", true},
		{ModCtrl, "ctrl", true},
		{"BREAK", "", false},
		{"NUMPAD12", "", false},
		{"FOO", "", false},
	}
	for _, tt := range tests {
		got, ok := RobotgoKey(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	// every canonical key xdotool knows should map, except the few robotgo lacks
	for name := range keysyms {
		if name == "BREAK" || name == "SCROLLLOCK" {
			continue
		}
		_, ok := RobotgoKey(name)
		assert.True(t, ok, name)
	}
}
