// Package picker asks the user which entry to auto-type when the window
// match is ambiguous.
package picker

import (
	"context"
	"fmt"

	"autotyped/internal/entry"
	"autotyped/internal/filter"
)

// Selection is the user's choice. An empty Sequence means the entry's own
// auto-type sequence.
type Selection struct {
	Entry    *entry.Entry
	Sequence string
}

// Picker shows the entries of a filter and returns the chosen one, or nil
// when the user cancels.
type Picker interface {
	Select(ctx context.Context, f *filter.Filter) (*Selection, error)
}

// Options configures New.
type Options struct {
	// Kind is "command", "terminal" or "none".
	Kind    string
	Command []string
}

// New returns the picker named by opts.
func New(opts Options) (Picker, error) {
	switch opts.Kind {
	case "command":
		if len(opts.Command) == 0 {
			return nil, fmt.Errorf("picker: command picker needs a command")
		}
		return &Command{Argv: opts.Command}, nil
	case "terminal":
		return &Terminal{}, nil
	case "none", "":
		return None{}, nil
	}
	return nil, fmt.Errorf("picker: unknown kind %q", opts.Kind)
}

// None never offers a choice. Ambiguous triggers are cancelled.
type None struct{}

// Select implements Picker.
func (None) Select(context.Context, *filter.Filter) (*Selection, error) { return nil, nil }

// Alternative sequences offered next to the entry's own.
var shortcuts = []struct {
	Key      string
	Label    string
	Sequence string
}{
	{"ctrl+u", "username", "{USERNAME}"},
	{"ctrl+p", "password", "{PASSWORD}"},
	{"ctrl+t", "one-time code", "{TOTP}"},
}
