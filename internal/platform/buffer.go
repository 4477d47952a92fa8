package platform

// Buffer is a minimal text field that applies actions the way a focused
// input box would: typing replaces the selection, shift extends it, and
// input sent with ctrl, alt or meta held is treated as a shortcut and
// dropped. It is used to check what a run actually leaves behind.
type Buffer struct {
	text   []rune
	cursor int
	anchor int
	held   map[string]bool
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{held: make(map[string]bool)}
}

// String returns the buffer contents.
func (b *Buffer) String() string { return string(b.text) }

// Selection returns the selected text.
func (b *Buffer) Selection() string {
	lo, hi := b.selection()
	return string(b.text[lo:hi])
}

// Held reports whether a modifier is currently down.
func (b *Buffer) Held(mod string) bool { return b.held[mod] }

func (b *Buffer) selection() (int, int) {
	if b.anchor < b.cursor {
		return b.anchor, b.cursor
	}
	return b.cursor, b.anchor
}

func (b *Buffer) shortcut() bool {
	return b.held[ModCtrl] || b.held[ModAlt] || b.held[ModMeta]
}

// Apply feeds one action into the buffer.
func (b *Buffer) Apply(a Action) {
	switch a.Kind {
	case KeyDown:
		b.held[a.Key] = true
	case KeyUp:
		delete(b.held, a.Key)
	case TypeText:
		if !b.shortcut() {
			b.insert([]rune(a.Text))
		}
	case KeyPress:
		if !b.shortcut() {
			b.press(a.Key)
		}
	}
}

func (b *Buffer) insert(r []rune) {
	lo, hi := b.selection()
	out := make([]rune, 0, len(b.text)-(hi-lo)+len(r))
	out = append(out, b.text[:lo]...)
	out = append(out, r...)
	out = append(out, b.text[hi:]...)
	b.text = out
	b.cursor = lo + len(r)
	b.anchor = b.cursor
}

func (b *Buffer) move(to int) {
	to = max(0, min(to, len(b.text)))
	b.cursor = to
	if !b.held[ModShift] {
		b.anchor = to
	}
}

func (b *Buffer) press(key string) {
	lo, hi := b.selection()
	switch key {
	case "LEFT":
		if lo != hi && !b.held[ModShift] {
			b.move(lo)
			return
		}
		b.move(b.cursor - 1)
	case "RIGHT":
		if lo != hi && !b.held[ModShift] {
			b.move(hi)
			return
		}
		b.move(b.cursor + 1)
	case "HOME":
		b.move(0)
	case "END":
		b.move(len(b.text))
	case "BACKSPACE":
		if lo == hi && lo > 0 {
			b.anchor = lo - 1
		}
		b.insert(nil)
	case "DELETE":
		if lo == hi && hi < len(b.text) {
			b.anchor = hi + 1
		}
		b.insert(nil)
	case "ENTER":
		b.insert([]rune{'\n'})
	case "TAB":
		b.insert([]rune{'\t'})
	case "SPACE":
		b.insert([]rune{' '})
	}
}
