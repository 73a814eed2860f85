package input

import (
	"sort"
	"strconv"
	"strings"
)

// Windows virtual key codes. The engines identify non-text keys by these.
var keyCodes = map[string]int{
	"backspace":    0x08,
	"tab":          0x09,
	"return":       0x0D,
	"enter":        0x0D,
	"shift":        0x10,
	"left shift":   0x10,
	"right shift":  0x10,
	"ctrl":         0x11,
	"left ctrl":    0x11,
	"right ctrl":   0x11,
	"alt":          0x12,
	"left alt":     0x12,
	"right alt":    0x12,
	"pause":        0x13,
	"caps lock":    0x14,
	"escape":       0x1B,
	"space":        0x20,
	"page up":      0x21,
	"page down":    0x22,
	"end":          0x23,
	"home":         0x24,
	"left":         0x25,
	"up":           0x26,
	"right":        0x27,
	"down":         0x28,
	"insert":       0x2D,
	"delete":       0x2E,
	"left meta":    0x5B,
	"right meta":   0x5C,
	"menu":         0x5D,
	"keypad 0":     0x60,
	"keypad 1":     0x61,
	"keypad 2":     0x62,
	"keypad 3":     0x63,
	"keypad 4":     0x64,
	"keypad 5":     0x65,
	"keypad 6":     0x66,
	"keypad 7":     0x67,
	"keypad 8":     0x68,
	"keypad 9":     0x69,
	"keypad *":     0x6A,
	"keypad +":     0x6B,
	"keypad -":     0x6D,
	"keypad .":     0x6E,
	"keypad /":     0x6F,
	"keypad enter": 0x0D,
	"num lock":     0x90,
	"scroll lock":  0x91,
	";":            0xBA,
	"=":            0xBB,
	",":            0xBC,
	"-":            0xBD,
	".":            0xBE,
	"/":            0xBF,
	"`":            0xC0,
	"[":            0xDB,
	"\\":           0xDC,
	"]":            0xDD,
	"'":            0xDE,
}

// aliases maps alternative spellings onto table names.
var aliases = map[string]string{
	"esc":        "escape",
	"del":        "delete",
	"pageup":     "page up",
	"pagedown":   "page down",
	"pgup":       "page up",
	"pgdn":       "page down",
	"capslock":   "caps lock",
	"numlock":    "num lock",
	"control":    "ctrl",
	"kp_enter":   "keypad enter",
	"arrowleft":  "left",
	"arrowright": "right",
	"arrowup":    "up",
	"arrowdown":  "down",
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		keyCodes[string(c)] = int(c - 'a' + 'A')
	}
	for c := '0'; c <= '9'; c++ {
		keyCodes[string(c)] = int(c)
	}
	for n := 1; n <= 12; n++ {
		keyCodes["f"+strconv.Itoa(n)] = 0x70 + n - 1
	}
}

// KeyCode looks up the virtual key code for a symbolic key name. Lookup is
// case-insensitive.
func KeyCode(name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[key]; ok {
		key = a
	}
	code, ok := keyCodes[key]
	return code, ok
}

// KeyNames returns every name in the key table, sorted.
func KeyNames() []string {
	names := make([]string, 0, len(keyCodes))
	for name := range keyCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
