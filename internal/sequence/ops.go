// Package sequence compiles auto-type templates into operation trees,
// prints them back, and resolves field placeholders against an entry.
//
// Template syntax:
//
//	abc            literal text
//	{TAB} {TAB 3}  named key, optionally repeated
//	{USERNAME}     field placeholder; {S:Name} addresses a custom field
//	{DELAY 500}    pause for 500ms; {DELAY=50} sets the delay between keys
//	{{} {}} {+}    single characters in braces are literal
//	~              ENTER
//	+ ^ % @        Shift, Ctrl, Alt, Meta for the next char, key or (group)
package sequence

import "strings"

// Kind tags an Op.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindKey
	KindGroup
	KindPlaceholder
	KindDelay
	KindSetDelay
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindKey:
		return "key"
	case KindGroup:
		return "group"
	case KindPlaceholder:
		return "placeholder"
	case KindDelay:
		return "delay"
	case KindSetDelay:
		return "set-delay"
	}
	return "unknown"
}

// Modifiers is a set of held modifier keys.
type Modifiers uint8

const (
	Shift Modifiers = 1 << iota
	Ctrl
	Alt
	Meta
)

// modifierOrder is press order; release runs in reverse.
var modifierOrder = []Modifiers{Shift, Ctrl, Alt, Meta}

// List returns the individual modifiers in press order.
func (m Modifiers) List() []Modifiers {
	var out []Modifiers
	for _, mod := range modifierOrder {
		if m&mod != 0 {
			out = append(out, mod)
		}
	}
	return out
}

// Name is the lowercase key name of a single modifier.
func (m Modifiers) Name() string {
	switch m {
	case Shift:
		return "shift"
	case Ctrl:
		return "ctrl"
	case Alt:
		return "alt"
	case Meta:
		return "meta"
	}
	return ""
}

// Prefix renders the set in template syntax.
func (m Modifiers) Prefix() string {
	var b strings.Builder
	for _, mod := range m.List() {
		b.WriteByte(modifierChar(mod))
	}
	return b.String()
}

func modifierChar(m Modifiers) byte {
	switch m {
	case Shift:
		return '+'
	case Ctrl:
		return '^'
	case Alt:
		return '%'
	default:
		return '@'
	}
}

func modifierFor(r rune) (Modifiers, bool) {
	switch r {
	case '+':
		return Shift, true
	case '^':
		return Ctrl, true
	case '%':
		return Alt, true
	case '@':
		return Meta, true
	}
	return 0, false
}

// Op is one node of an operation tree.
//
// Value holds the literal text (KindText), the canonical key name
// (KindKey) or the field name (KindPlaceholder). Repeat applies to keys
// and placeholders. Ms applies to the delay kinds. Mods are held for the
// duration of the op and, for groups, of every child.
type Op struct {
	Kind   Kind
	Value  string
	Repeat int
	Ms     int
	Mods   Modifiers
	Ops    []*Op
}

// Text returns an unmodified literal text op.
func Text(s string) *Op { return &Op{Kind: KindText, Value: s} }

// Key returns a key op pressed once.
func Key(name string) *Op { return &Op{Kind: KindKey, Value: name, Repeat: 1} }

// Group returns a group op.
func Group(mods Modifiers, ops ...*Op) *Op { return &Op{Kind: KindGroup, Mods: mods, Ops: ops} }

// Clone deep-copies the op.
func (o *Op) Clone() *Op {
	c := *o
	if o.Ops != nil {
		c.Ops = CloneTree(o.Ops)
	}
	return &c
}

// CloneTree deep-copies a tree.
func CloneTree(ops []*Op) []*Op {
	out := make([]*Op, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

// Walk visits every op depth-first, parents before children.
// Returning false from fn skips the op's children.
func Walk(ops []*Op, fn func(*Op) bool) {
	for _, op := range ops {
		if fn(op) && op.Kind == KindGroup {
			Walk(op.Ops, fn)
		}
	}
}

// Placeholders lists unresolved placeholder names in tree order.
func Placeholders(ops []*Op) []string {
	var names []string
	Walk(ops, func(op *Op) bool {
		if op.Kind == KindPlaceholder {
			names = append(names, op.Value)
		}
		return true
	})
	return names
}

// Equal reports structural equality of two trees.
func Equal(a, b []*Op) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Kind != y.Kind || x.Value != y.Value || x.Repeat != y.Repeat ||
			x.Ms != y.Ms || x.Mods != y.Mods || !Equal(x.Ops, y.Ops) {
			return false
		}
	}
	return true
}
