package sequence

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseError reports a malformed template. Pos is a character offset.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("auto-type sequence: %s at position %d", e.Msg, e.Pos)
}

func errAt(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Parse compiles a template into an operation tree. The returned slice is
// the children of the implicit root group.
func Parse(template string) ([]*Op, error) {
	p := &parser{src: []rune(template)}
	return p.parseSeq(-1)
}

type parser struct {
	src []rune
	pos int
}

// parseSeq parses until end of input, or until the ')' matching the '('
// at openPos when openPos >= 0.
func (p *parser) parseSeq(openPos int) ([]*Op, error) {
	var (
		ops    []*Op
		mods   Modifiers
		modPos int
	)

	for p.pos < len(p.src) {
		r := p.src[p.pos]

		if m, ok := modifierFor(r); ok {
			if mods == 0 {
				modPos = p.pos
			}
			mods |= m
			p.pos++
			continue
		}

		switch r {
		case '(':
			start := p.pos
			p.pos++
			children, err := p.parseSeq(start)
			if err != nil {
				return nil, err
			}
			ops = append(ops, &Op{Kind: KindGroup, Mods: mods, Ops: children})

		case ')':
			if openPos < 0 {
				return nil, errAt(p.pos, "unmatched ')'")
			}
			if mods != 0 {
				return nil, errAt(modPos, "modifier not followed by a key")
			}
			p.pos++
			if ops == nil {
				ops = []*Op{}
			}
			return ops, nil

		case '}':
			return nil, errAt(p.pos, "unmatched '}'")

		case '{':
			op, err := p.parseBrace()
			if err != nil {
				return nil, err
			}
			ops = appendOp(ops, op, mods)

		case '~':
			p.pos++
			ops = appendOp(ops, Key(KeyEnter), mods)

		default:
			p.pos++
			ops = appendOp(ops, Text(string(r)), mods)
		}
		mods = 0
	}

	if openPos >= 0 {
		return nil, errAt(openPos, "unclosed '('")
	}
	if mods != 0 {
		return nil, errAt(modPos, "modifier not followed by a key")
	}
	return ops, nil
}

// appendOp attaches mods to op and merges runs of unmodified text.
func appendOp(ops []*Op, op *Op, mods Modifiers) []*Op {
	op.Mods = mods
	if op.Kind == KindText && mods == 0 && len(ops) > 0 {
		if last := ops[len(ops)-1]; last.Kind == KindText && last.Mods == 0 {
			last.Value += op.Value
			return ops
		}
	}
	return append(ops, op)
}

// parseBrace consumes "{...}" at p.pos. The closing brace is searched from
// the second character of the body so that "{}}" is the literal '}'.
func (p *parser) parseBrace() (*Op, error) {
	start := p.pos
	end := -1
	for i := start + 2; i < len(p.src); i++ {
		if p.src[i] == '}' {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, errAt(start, "missing '}'")
	}
	body := string(p.src[start+1 : end])
	p.pos = end + 1
	return braceOp(body, start)
}

func braceOp(body string, pos int) (*Op, error) {
	if utf8.RuneCountInString(body) == 1 {
		return Text(body), nil
	}

	if rest, ok := strings.CutPrefix(strings.ToUpper(body), "DELAY="); ok {
		ms, ok := parseCount(strings.TrimSpace(rest))
		if !ok {
			return nil, errAt(pos, "invalid delay %q", rest)
		}
		return &Op{Kind: KindSetDelay, Ms: ms}, nil
	}

	if i := strings.LastIndexByte(body, ' '); i > 0 {
		name, arg := body[:i], body[i+1:]
		trimmed := strings.TrimSpace(name)
		if strings.EqualFold(trimmed, "DELAY") {
			ms, ok := parseCount(arg)
			if !ok {
				return nil, errAt(pos, "invalid delay %q", arg)
			}
			return &Op{Kind: KindDelay, Ms: ms}, nil
		}
		if key, ok := LookupKey(trimmed); ok {
			n, ok := parseCount(arg)
			if !ok {
				return nil, errAt(pos, "invalid repeat count %q for %s", arg, key)
			}
			return &Op{Kind: KindKey, Value: key, Repeat: n}, nil
		}
		if n, ok := parseCount(arg); ok {
			return &Op{Kind: KindPlaceholder, Value: name, Repeat: n}, nil
		}
		// A space inside a field name, e.g. {S:Recovery Email}.
		return &Op{Kind: KindPlaceholder, Value: body, Repeat: 1}, nil
	}

	if strings.EqualFold(body, "DELAY") {
		return nil, errAt(pos, "DELAY needs a duration")
	}
	if key, ok := LookupKey(body); ok {
		return Key(key), nil
	}
	return &Op{Kind: KindPlaceholder, Value: body, Repeat: 1}, nil
}
