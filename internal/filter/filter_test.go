package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotyped/internal/entry"
	"autotyped/internal/platform"
)

func at(title, url string) *entry.Entry {
	return &entry.Entry{ID: title, Title: title, URL: url, AutoTypeEnabled: true}
}

func titles(entries []*entry.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

func TestStringRank(t *testing.T) {
	tests := []struct {
		entry, window string
		want          int
	}{
		{"github", "github", 10},
		{"github - sign in", "github", 5},
		{"my github", "github", 3},
		{"github", "github - sign in", 5},
		{"github", "sign in to github", 3},
		{"gitlab", "github", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StringRank(tt.entry, tt.window), "%q vs %q", tt.entry, tt.window)
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name  string
		win   platform.WindowInfo
		entry *entry.Entry
		want  int
	}{
		{
			name:  "exact title domain path scheme",
			win:   platform.WindowInfo{Title: "GitHub", URL: "https://github.com/login"},
			entry: at("GitHub", "https://github.com/login"),
			want:  31,
		},
		{
			name:  "window title extends entry title",
			win:   platform.WindowInfo{Title: "GitHub - Sign in", URL: "https://github.com/login"},
			entry: at("GitHub", "https://github.com/login"),
			want:  26,
		},
		{
			name:  "case insensitive",
			win:   platform.WindowInfo{Title: "GITHUB", URL: "HTTPS://GitHub.com/LOGIN"},
			entry: at("github", "https://github.COM/login"),
			want:  31,
		},
		{
			name:  "www prefix ignored",
			win:   platform.WindowInfo{URL: "https://www.example.com/"},
			entry: at("Example", "https://example.com"),
			want:  21,
		},
		{
			name:  "scheme differs",
			win:   platform.WindowInfo{URL: "http://example.com/a"},
			entry: at("Example", "https://example.com/a"),
			want:  20,
		},
		{
			name:  "entry path extends window path",
			win:   platform.WindowInfo{URL: "https://example.com/login"},
			entry: at("Example", "https://example.com/login/step2"),
			want:  16,
		},
		{
			name:  "window path extends entry path",
			win:   platform.WindowInfo{URL: "https://example.com/login/step2"},
			entry: at("Example", "https://example.com/login"),
			want:  14,
		},
		{
			name:  "unrelated paths",
			win:   platform.WindowInfo{URL: "https://example.com/a"},
			entry: at("Example", "https://example.com/b"),
			want:  11,
		},
		{
			name:  "other domain excluded despite title",
			win:   platform.WindowInfo{Title: "GitHub", URL: "https://github.com/login"},
			entry: at("GitHub", "https://gitlab.com/login"),
			want:  0,
		},
		{
			name: "other domain kept when url is in entry text",
			win:  platform.WindowInfo{Title: "Sign in to GitHub", URL: "https://github.com/login"},
			entry: &entry.Entry{Title: "Corp SSO", URL: "https://sso.corp.example",
				Notes: "Also used for HTTPS://GITHUB.COM/LOGIN", AutoTypeEnabled: true},
			want: 5,
		},
		{
			name:  "title only",
			win:   platform.WindowInfo{Title: "Inbox - Mail"},
			entry: at("Mail", "https://mail.example.com"),
			want:  3,
		},
		{
			name:  "entry without url",
			win:   platform.WindowInfo{Title: "Bank", URL: "https://bank.example"},
			entry: at("Bank", ""),
			want:  10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.win, entry.NewCollection())
			assert.Equal(t, tt.want, f.Rank(tt.entry))
		})
	}
}

func TestEntriesRanked(t *testing.T) {
	disabled := at("GitHub disabled", "https://github.com/login")
	disabled.AutoTypeEnabled = false

	c := entry.NewCollection(
		at("Zeta GitHub", "https://github.com/"),
		at("GitHub", "https://github.com/login"),
		at("alpha GitHub", "https://github.com/"),
		at("GitLab", "https://gitlab.com/"),
		at("Unrelated", ""),
		disabled,
	)
	f := New(platform.WindowInfo{Title: "GitHub", URL: "https://github.com/login"}, c)

	ranked, err := f.Ranked(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "GitHub", ranked[0].Entry.Title)
	assert.Equal(t, 31, ranked[0].Rank)
	// Equal ranks fall back to title order.
	assert.Equal(t, ranked[1].Rank, ranked[2].Rank)
	assert.Equal(t, []string{"GitHub", "alpha GitHub", "Zeta GitHub"}, titles(entriesOf(ranked)))
}

func entriesOf(r []Ranked) []*entry.Entry {
	out := make([]*entry.Entry, len(r))
	for i := range r {
		out[i] = r[i].Entry
	}
	return out
}

func TestEntriesWithoutWindowInfo(t *testing.T) {
	c := entry.NewCollection(at("Zeta", ""), at("alpha", "https://a.com"), at("Beta", ""))

	f := New(platform.WindowInfo{ID: "123"}, c)
	got, err := f.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Beta", "Zeta"}, titles(got))

	f = New(platform.WindowInfo{Title: "nothing matches", URL: "https://nowhere.example"}, c)
	got, err = f.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	f.IgnoreWindowInfo = true
	got, err = f.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Beta", "Zeta"}, titles(got))

	f.Text = "ET"
	got, err = f.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Zeta"}, titles(got))
}

func TestEntriesClosedProvider(t *testing.T) {
	c := entry.NewCollection(at("a", ""))
	c.SetOpen(false)
	_, err := New(platform.WindowInfo{}, c).Entries(context.Background())
	assert.ErrorIs(t, err, entry.ErrClosed)
}
