package platform

import "strings"

// robotgoKeys maps canonical key names to robotgo key names.
var robotgoKeys = map[string]string{
	"TAB":       "tab",
	"ENTER":     "enter",
	"SPACE":     "space",
	"BACKSPACE": "backspace",
	"DELETE":    "delete",
	"INSERT":    "insert",
	"ESC":       "escape",
	"UP":        "up",
	"DOWN":      "down",
	"LEFT":      "left",
	"RIGHT":     "right",
	"HOME":      "home",
	"END":       "end",
	"PGUP":      "pageup",
	"PGDN":      "pagedown",
	"CAPSLOCK":  "capslock",
	"NUMLOCK":   "num_lock",
	"PRTSC":     "printscreen",
	"APPS":      "menu",
	"WIN":       "cmd",
	"RWIN":      "rcmd",
	"ADD":       "num_plus",
	"SUBTRACT":  "num_minus",
	"MULTIPLY":  "num_mul",
	"DIVIDE":    "num_div",

	ModShift: "shift",
	ModCtrl:  "ctrl",
	ModAlt:   "alt",
	ModMeta:  "cmd",
}

// RobotgoKey returns the robotgo name for a canonical key or modifier.
func RobotgoKey(key string) (string, bool) {
	if s, ok := robotgoKeys[key]; ok {
		return s, true
	}
	if rest, ok := strings.CutPrefix(key, "NUMPAD"); ok && len(rest) == 1 && rest[0] >= '0' && rest[0] <= '9' {
		return "num" + rest, true
	}
	if len(key) >= 2 && key[0] == 'F' && key[1] >= '1' && key[1] <= '9' {
		return strings.ToLower(key), true
	}
	return "", false
}
