package sequence

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const specialChars = "+^%@~(){}"

// Print renders a tree back into template syntax such that
// Parse(Print(ops)) is structurally equal to ops for any parsed tree.
func Print(ops []*Op) string {
	var b strings.Builder
	for _, op := range ops {
		printOp(&b, op)
	}
	return b.String()
}

func printOp(b *strings.Builder, op *Op) {
	b.WriteString(op.Mods.Prefix())

	switch op.Kind {
	case KindText:
		// A modifier binds to one character, so longer modified text
		// needs a group to keep the same scope.
		wrap := op.Mods != 0 && len([]rune(op.Value)) != 1
		if wrap {
			b.WriteByte('(')
		}
		writeEscaped(b, op.Value)
		if wrap {
			b.WriteByte(')')
		}
	case KindKey:
		writeBrace(b, op.Value, op.Repeat, op.Repeat != 1)
	case KindPlaceholder:
		withCount := op.Repeat != 1 || endsWithCount(op.Value) || utf8.RuneCountInString(op.Value) < 2
		writeBrace(b, op.Value, op.Repeat, withCount)
	case KindGroup:
		b.WriteByte('(')
		for _, child := range op.Ops {
			printOp(b, child)
		}
		b.WriteByte(')')
	case KindDelay:
		writeBrace(b, "DELAY", op.Ms, true)
	case KindSetDelay:
		b.WriteString("{DELAY=")
		b.WriteString(strconv.Itoa(op.Ms))
		b.WriteByte('}')
	}
}

func writeEscaped(b *strings.Builder, s string) {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
			continue
		}
		b.WriteRune(r)
	}
}

func writeBrace(b *strings.Builder, name string, n int, withCount bool) {
	b.WriteByte('{')
	b.WriteString(name)
	if withCount {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(n))
	}
	b.WriteByte('}')
}

// endsWithCount reports whether a name would be split into name and
// repeat count when printed on its own.
func endsWithCount(name string) bool {
	i := strings.LastIndexByte(name, ' ')
	if i <= 0 {
		return false
	}
	_, ok := parseCount(name[i+1:])
	return ok
}

// Describe renders a tree for debug logs. Literal text is replaced with
// '*' per character unless clearText is set.
func Describe(ops []*Op, clearText bool) string {
	var b strings.Builder
	describeOps(&b, ops, clearText)
	return b.String()
}

func describeOps(b *strings.Builder, ops []*Op, clearText bool) {
	b.WriteByte('[')
	for i, op := range ops {
		if i > 0 {
			b.WriteByte(',')
		}
		for j, m := range op.Mods.List() {
			if j > 0 {
				b.WriteByte('+')
			}
			b.WriteString(m.Name())
		}
		if op.Mods != 0 {
			b.WriteByte('+')
		}
		switch op.Kind {
		case KindGroup:
			describeOps(b, op.Ops, clearText)
		case KindText:
			if clearText {
				b.WriteString(op.Value)
			} else {
				b.WriteString(strings.Repeat("*", len([]rune(op.Value))))
			}
		case KindDelay, KindSetDelay:
			b.WriteString(op.Kind.String())
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(op.Ms))
		default:
			b.WriteString(op.Kind.String())
			b.WriteByte(':')
			b.WriteString(op.Value)
			if op.Repeat != 1 {
				b.WriteByte('*')
				b.WriteString(strconv.Itoa(op.Repeat))
			}
		}
	}
	b.WriteByte(']')
}
