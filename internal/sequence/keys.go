package sequence

import (
	"strconv"
	"strings"
)

// Canonical key names. Platforms translate these to native key codes.
const (
	KeyTab       = "TAB"
	KeyEnter     = "ENTER"
	KeySpace     = "SPACE"
	KeyBackspace = "BACKSPACE"
	KeyDelete    = "DELETE"
	KeyInsert    = "INSERT"
	KeyEscape    = "ESC"
	KeyUp        = "UP"
	KeyDown      = "DOWN"
	KeyLeft      = "LEFT"
	KeyRight     = "RIGHT"
	KeyHome      = "HOME"
	KeyEnd       = "END"
	KeyPageUp    = "PGUP"
	KeyPageDown  = "PGDN"
)

var keyAliases = map[string]string{
	"TAB":        KeyTab,
	"ENTER":      KeyEnter,
	"SPACE":      KeySpace,
	"BACKSPACE":  KeyBackspace,
	"BS":         KeyBackspace,
	"BKSP":       KeyBackspace,
	"DELETE":     KeyDelete,
	"DEL":        KeyDelete,
	"INSERT":     KeyInsert,
	"INS":        KeyInsert,
	"ESC":        KeyEscape,
	"UP":         KeyUp,
	"DOWN":       KeyDown,
	"LEFT":       KeyLeft,
	"RIGHT":      KeyRight,
	"HOME":       KeyHome,
	"END":        KeyEnd,
	"PGUP":       KeyPageUp,
	"PGDN":       KeyPageDown,
	"CAPSLOCK":   "CAPSLOCK",
	"NUMLOCK":    "NUMLOCK",
	"SCROLLLOCK": "SCROLLLOCK",
	"PRTSC":      "PRTSC",
	"BREAK":      "BREAK",
	"APPS":       "APPS",
	"WIN":        "WIN",
	"LWIN":       "WIN",
	"RWIN":       "RWIN",
	"ADD":        "ADD",
	"SUBTRACT":   "SUBTRACT",
	"MULTIPLY":   "MULTIPLY",
	"DIVIDE":     "DIVIDE",
}

// LookupKey returns the canonical name of a reserved key, case-insensitively.
// F1-F16 and NUMPAD0-NUMPAD9 are recognised in addition to the table.
func LookupKey(name string) (string, bool) {
	upper := strings.ToUpper(name)
	if k, ok := keyAliases[upper]; ok {
		return k, true
	}
	if n, ok := numberedKey(upper, "F"); ok && n >= 1 && n <= 16 {
		return upper, true
	}
	if n, ok := numberedKey(upper, "NUMPAD"); ok && n <= 9 {
		return upper, true
	}
	return "", false
}

func numberedKey(s, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" || (len(rest) > 1 && rest[0] == '0') {
		return 0, false
	}
	return parseCount(rest)
}

// parseCount parses a non-negative decimal made only of ASCII digits.
func parseCount(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
