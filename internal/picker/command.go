package picker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"autotyped/internal/entry"
	"autotyped/internal/filter"
)

// Command runs a dmenu-style program: one entry per line on stdin, the
// chosen line on stdout. A non-zero exit with no output is a cancel.
type Command struct {
	Argv []string

	// run is swapped in tests.
	run func(ctx context.Context, argv []string, stdin []byte) ([]byte, error)
}

// Line renders an entry for the menu. The leading index is what Select
// parses back, so titles may repeat.
func Line(i int, e *entry.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", i+1, oneLine(e.Title))
	if e.UserName != "" {
		fmt.Fprintf(&b, "  [%s]", oneLine(e.UserName))
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "  %s", oneLine(e.URL))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Select implements Picker.
func (c *Command) Select(ctx context.Context, f *filter.Filter) (*Selection, error) {
	entries, err := f.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var in bytes.Buffer
	for i, e := range entries {
		in.WriteString(Line(i, e))
		in.WriteByte('\n')
	}

	run := c.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, c.Argv, in.Bytes())
	choice := strings.TrimSpace(string(out))
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) && choice == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("picker %s: %w", c.Argv[0], err)
	}
	if choice == "" {
		return nil, nil
	}

	num, _, ok := strings.Cut(choice, ".")
	n, err := strconv.Atoi(num)
	if !ok || err != nil || n < 1 || n > len(entries) {
		return nil, fmt.Errorf("picker %s: unexpected choice %q", c.Argv[0], choice)
	}
	return &Selection{Entry: entries[n-1]}, nil
}

func runCommand(ctx context.Context, argv []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	return cmd.Output()
}
