package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"autotyped/internal/entry"
	"autotyped/internal/filter"
)

// Terminal is an interactive picker drawn on a terminal. In and Out
// default to /dev/tty.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// Select implements Picker.
func (t *Terminal) Select(ctx context.Context, f *filter.Filter) (*Selection, error) {
	entries, err := f.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	in, out := t.In, t.Out
	if in == nil || out == nil {
		tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("picker: open terminal: %w", err)
		}
		defer tty.Close()
		if in == nil {
			in = tty
		}
		if out == nil {
			out = tty
		}
	}

	m := newModel(windowLabel(f), entries)
	final, err := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("picker: %w", err)
	}
	return final.(model).result, nil
}

func windowLabel(f *filter.Filter) string {
	if f.Window.URL != "" {
		return f.Window.URL
	}
	return f.Window.Title
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	queryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	fuzzyStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// maxRows bounds the visible list.
const maxRows = 10

// model is the picker's bubbletea state. Update never blocks; the entry
// list is fixed when the model is built.
type model struct {
	header   string
	all      []*entry.Entry
	visible  []*entry.Entry
	query    string
	cursor   int
	fuzzy    bool
	result   *Selection
	finished bool
}

func newModel(header string, entries []*entry.Entry) model {
	m := model{header: header, all: entries}
	m.refilter()
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyRunes, tea.KeySpace:
		m.query += string(key.Runes)
		if key.Type == tea.KeySpace && len(key.Runes) == 0 {
			m.query += " "
		}
		m.refilter()
		return m, nil
	}

	switch name := key.String(); name {
	case "up", "ctrl+k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "ctrl+j", "tab":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "backspace":
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
			m.refilter()
		}
	case "enter":
		return m.choose("")
	case "esc", "ctrl+c":
		m.finished = true
		return m, tea.Quit
	default:
		for _, s := range shortcuts {
			if s.Key == name {
				return m.choose(s.Sequence)
			}
		}
	}
	return m, nil
}

func (m model) choose(seq string) (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.visible) {
		return m, nil
	}
	m.result = &Selection{Entry: m.visible[m.cursor], Sequence: seq}
	m.finished = true
	return m, tea.Quit
}

// refilter applies the query as a substring search. When nothing
// matches, titles within a small edit distance of the query are offered
// instead, closest first.
func (m *model) refilter() {
	m.cursor = 0
	m.fuzzy = false
	q := strings.TrimSpace(m.query)
	if q == "" {
		m.visible = m.all
		return
	}
	m.visible = m.visible[:0:0]
	for _, e := range m.all {
		if e.Matches(entry.Query{Text: q}) {
			m.visible = append(m.visible, e)
		}
	}
	if len(m.visible) > 0 {
		return
	}

	lq := strings.ToLower(q)
	limit := len([]rune(lq))/3 + 1
	type scored struct {
		e    *entry.Entry
		dist int
	}
	var near []scored
	for _, e := range m.all {
		title := strings.ToLower(e.Title)
		d := levenshtein.ComputeDistance(lq, title)
		if prefix := []rune(title); len(prefix) > len([]rune(lq)) {
			if pd := levenshtein.ComputeDistance(lq, string(prefix[:len([]rune(lq))])); pd < d {
				d = pd
			}
		}
		if d <= limit {
			near = append(near, scored{e, d})
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return near[i].dist < near[j].dist })
	for _, s := range near {
		m.visible = append(m.visible, s.e)
	}
	m.fuzzy = len(m.visible) > 0
}

func (m model) View() string {
	if m.finished {
		return ""
	}
	var b strings.Builder
	head := "Auto-type"
	if m.header != "" {
		head += ": " + m.header
	}
	b.WriteString(titleStyle.Render(head))
	b.WriteString("\n")
	b.WriteString(queryStyle.Render("> " + m.query))
	b.WriteString("\n")
	if m.fuzzy {
		b.WriteString(fuzzyStyle.Render("no exact match, showing similar titles"))
		b.WriteString("\n")
	}

	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}
	for i := start; i < len(m.visible) && i < start+maxRows; i++ {
		e := m.visible[i]
		line := e.Title
		if e.UserName != "" {
			line += " " + metaStyle.Render(e.UserName)
		}
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if len(m.visible) == 0 {
		b.WriteString(metaStyle.Render("  no entries"))
		b.WriteString("\n")
	}

	help := []string{"enter type"}
	for _, s := range shortcuts {
		help = append(help, s.Key+" "+s.Label)
	}
	help = append(help, "esc cancel")
	b.WriteString(helpStyle.Render(strings.Join(help, " · ")))
	return b.String()
}
