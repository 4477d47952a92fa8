// Package filter ranks auto-type entries against the window that was
// focused when auto-type was triggered.
package filter

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"autotyped/internal/entry"
	"autotyped/internal/platform"
)

// urlParts splits a lowercased URL into scheme, domain and path.
var urlParts = regexp.MustCompile(`^(\w+://)?(?:(?:www|wwws|secure)\.)?([^/]+)/?(.*)`)

type parsedURL struct {
	scheme, domain, path string
}

func parseURL(s string) (parsedURL, bool) {
	m := urlParts.FindStringSubmatch(s)
	if m == nil {
		return parsedURL{}, false
	}
	return parsedURL{scheme: m[1], domain: m[2], path: m[3]}, true
}

// Ranked is an entry with its score against the window.
type Ranked struct {
	Entry *entry.Entry
	Rank  int
}

// Filter selects auto-type entries for a window.
type Filter struct {
	Window platform.WindowInfo

	// Text narrows the list the same way the picker's search box does.
	Text string

	// IgnoreWindowInfo disables ranking; entries are sorted by title.
	IgnoreWindowInfo bool

	provider entry.Provider

	titleLower string
	urlLower   string
	url        parsedURL
	hasURL     bool
}

// New returns a filter over the auto-type entries of p.
func New(win platform.WindowInfo, p entry.Provider) *Filter {
	return &Filter{Window: win, provider: p}
}

// HasWindowInfo reports whether a title or URL was captured.
func (f *Filter) HasWindowInfo() bool {
	return f.Window.Title != "" || f.Window.URL != ""
}

// Entries returns matching entries, most relevant first. With window
// info, entries ranked 0 are dropped.
func (f *Filter) Entries(ctx context.Context) ([]*entry.Entry, error) {
	ranked, err := f.Ranked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*entry.Entry, len(ranked))
	for i, r := range ranked {
		out[i] = r.Entry
	}
	return out, nil
}

// Ranked is Entries with scores. Without window info every rank is 0.
func (f *Filter) Ranked(ctx context.Context) ([]Ranked, error) {
	entries, err := f.provider.EntriesByFilter(ctx, entry.Query{Text: f.Text, AutoType: true})
	if err != nil {
		return nil, err
	}

	cmp := collate.New(language.Und)
	if f.IgnoreWindowInfo || !f.HasWindowInfo() {
		out := make([]Ranked, len(entries))
		for i, e := range entries {
			out[i] = Ranked{Entry: e}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return cmp.CompareString(out[i].Entry.Title, out[j].Entry.Title) < 0
		})
		return out, nil
	}

	f.prepare()
	out := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if r := f.rank(e); r > 0 {
			out = append(out, Ranked{Entry: e, Rank: r})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return cmp.CompareString(out[i].Entry.Title, out[j].Entry.Title) < 0
	})
	return out, nil
}

func (f *Filter) prepare() {
	f.titleLower = strings.ToLower(f.Window.Title)
	f.urlLower = strings.ToLower(f.Window.URL)
	f.url, f.hasURL = parsedURL{}, false
	if f.urlLower != "" {
		f.url, f.hasURL = parseURL(f.urlLower)
	}
}

// Rank scores e against the window. 0 excludes the entry.
func (f *Filter) Rank(e *entry.Entry) int {
	f.prepare()
	return f.rank(e)
}

func (f *Filter) rank(e *entry.Entry) int {
	rank := 0
	if f.titleLower != "" && e.Title != "" {
		rank += StringRank(strings.ToLower(e.Title), f.titleLower)
	}

	if !f.hasURL || e.URL == "" {
		return rank
	}
	u, ok := parseURL(strings.ToLower(e.URL))
	if !ok {
		return rank
	}

	if u.domain != f.url.domain {
		if strings.Contains(e.SearchText(), f.urlLower) {
			return rank + 5
		}
		// A title match alone never offers a credential to another domain.
		return 0
	}

	rank += 10
	switch {
	case u.path == f.url.path:
		rank += 10
	case u.path != "" && f.url.path != "":
		if strings.HasPrefix(u.path, f.url.path) {
			rank += 5
		} else if strings.HasPrefix(f.url.path, u.path) {
			rank += 3
		}
	}
	if u.scheme == f.url.scheme {
		rank++
	}
	return rank
}

// StringRank scores how well entry title s1 matches window title s2.
// Both must already be lowercased.
func StringRank(s1, s2 string) int {
	if ix := strings.Index(s1, s2); ix == 0 {
		if len(s1) == len(s2) {
			return 10
		}
		return 5
	} else if ix > 0 {
		return 3
	}
	if ix := strings.Index(s2, s1); ix == 0 {
		return 5
	} else if ix > 0 {
		return 3
	}
	return 0
}
