package sequence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ph(name string, repeat int) *Op { return &Op{Kind: KindPlaceholder, Value: name, Repeat: repeat} }

func withMods(op *Op, m Modifiers) *Op { op.Mods = m; return op }

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []*Op
	}{
		{"empty", "", nil},
		{"text merges", "abc def", []*Op{Text("abc def")}},
		{"default sequence", "{USERNAME}{TAB}{PASSWORD}{ENTER}",
			[]*Op{ph("USERNAME", 1), Key(KeyTab), ph("PASSWORD", 1), Key(KeyEnter)}},
		{"key case and alias", "{tab}{bs}{Del}", []*Op{Key(KeyTab), Key(KeyBackspace), Key(KeyDelete)}},
		{"function keys", "{F1}{f12}{NUMPAD3}", []*Op{Key("F1"), Key("F12"), Key("NUMPAD3")}},
		{"repeat key", "{TAB 3}", []*Op{{Kind: KindKey, Value: KeyTab, Repeat: 3}}},
		{"repeat zero", "{LEFT 0}", []*Op{{Kind: KindKey, Value: KeyLeft, Repeat: 0}}},
		{"repeat placeholder", "{PASSWORD 2}", []*Op{ph("PASSWORD", 2)}},
		{"placeholder keeps case", "{UserName}", []*Op{ph("UserName", 1)}},
		{"custom field", "{S:PIN}", []*Op{ph("S:PIN", 1)}},
		{"custom field with space", "{S:Recovery Email}", []*Op{ph("S:Recovery Email", 1)}},
		{"custom field with space and repeat", "{S:Recovery Email 2}", []*Op{ph("S:Recovery Email", 2)}},
		{"escaped braces", "{{}x{}}", []*Op{Text("{x}")}},
		{"escaped specials", "a{+}{^}{%}{@}{~}{(}{)}b", []*Op{Text("a+^%@~()b")}},
		{"tilde is enter", "a~", []*Op{Text("a"), Key(KeyEnter)}},
		{"modified char", "^a", []*Op{withMods(Text("a"), Ctrl)}},
		{"modified char splits text", "x^vy", []*Op{Text("x"), withMods(Text("v"), Ctrl), Text("y")}},
		{"stacked modifiers", "+^{END}", []*Op{withMods(Key(KeyEnd), Shift|Ctrl)}},
		{"modified escaped char", "%{+}", []*Op{withMods(Text("+"), Alt)}},
		{"modified tilde", "@~", []*Op{withMods(Key(KeyEnter), Meta)}},
		{"group", "+(ab{TAB})", []*Op{Group(Shift, Text("ab"), Key(KeyTab))}},
		{"empty group", "()", []*Op{Group(0)}},
		{"nested groups", "^(a%(b)c)", []*Op{Group(Ctrl, Text("a"), Group(Alt, Text("b")), Text("c"))}},
		{"modifier inside group", "(^a)", []*Op{Group(0, withMods(Text("a"), Ctrl))}},
		{"delay", "a{DELAY 250}b", []*Op{Text("a"), {Kind: KindDelay, Ms: 250}, Text("b")}},
		{"set delay", "{delay=40}", []*Op{{Kind: KindSetDelay, Ms: 40}}},
		{"single space literal", "{ }", []*Op{Text(" ")}},
		{"unicode", "pässwörd{ü}", []*Op{Text("pässwördü")}},
		{"date placeholder", "{DT_SIMPLE}", []*Op{ph("DT_SIMPLE", 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", Describe(got, true))
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in  string
		pos int
	}{
		{"(abc", 0},
		{"ab)", 2},
		{"x(a(b)", 1},
		{"{TAB", 0},
		{"ab{}", 2},
		{"+", 0},
		{"abc^", 3},
		{"(+)", 1},
		{"{TAB x}", 0},
		{"{DELAY}", 0},
		{"{DELAY soon}", 0},
		{"{DELAY=}", 0},
		{"{DELAY=-5}", 0},
		{"a{ENTER -1}", 1},
		{"abc}", 3},
		{"{TAB}}", 5},
		{"a}b", 1},
		{"(x})", 2},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.pos, pe.Pos)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	ops, err := Parse("{USERNAME}+({S:PIN}{TAB}){PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, []string{"USERNAME", "S:PIN", "PASSWORD"}, Placeholders(ops))
}

func TestLookupKey(t *testing.T) {
	for _, name := range []string{"F0", "F17", "F01", "F+1", "NUMPAD10", "FOO"} {
		_, ok := LookupKey(name)
		assert.False(t, ok, name)
	}
	k, ok := LookupKey("pgdn")
	assert.True(t, ok)
	assert.Equal(t, KeyPageDown, k)
}

func TestModifiers(t *testing.T) {
	m := Meta | Shift | Alt
	assert.Equal(t, []Modifiers{Shift, Alt, Meta}, m.List())
	assert.Equal(t, "+%@", m.Prefix())
	assert.Equal(t, "ctrl", Ctrl.Name())
}
