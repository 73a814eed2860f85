// Package input translates host input events into native engine submissions.
package input

import (
	"fmt"
	"strings"
)

// Event is a host input event already transformed into viewport-local
// coordinates. The concrete types are PointerMove, PointerButton, Wheel, Key
// and Focus.
type Event interface {
	isEvent()
}

// Button is a host pointer button.
type Button int

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonMiddle
	ButtonRight
)

// ParseButton maps a button name to a Button. Unknown names yield ButtonNone.
func ParseButton(name string) Button {
	switch name {
	case "left", "1":
		return ButtonLeft
	case "middle", "2":
		return ButtonMiddle
	case "right", "3":
		return ButtonRight
	default:
		return ButtonNone
	}
}

// Mod is the host modifier state carried by an event.
type Mod uint16

const (
	ModShift Mod = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
	ModNumLock
	ModCapsLock
)

var modNames = map[string]Mod{
	"shift":    ModShift,
	"ctrl":     ModCtrl,
	"control":  ModCtrl,
	"alt":      ModAlt,
	"option":   ModAlt,
	"meta":     ModMeta,
	"cmd":      ModMeta,
	"command":  ModMeta,
	"numlock":  ModNumLock,
	"capslock": ModCapsLock,
}

// ParseMods combines modifier names, case-insensitively.
func ParseMods(names []string) (Mod, error) {
	var m Mod
	for _, name := range names {
		bit, ok := modNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown modifier %q", name)
		}
		m |= bit
	}
	return m, nil
}

// PointerMove is cursor motion.
type PointerMove struct {
	X, Y float64
	Mods Mod
}

// PointerButton is a button press or release.
type PointerButton struct {
	X, Y   float64
	Button Button
	Down   bool
	Mods   Mod
}

// Wheel is a scroll in host wheel units.
type Wheel struct {
	X, Y           float64
	DeltaX, DeltaY float64
	Mods           Mod
}

// Key is a key press or release. Name is the symbolic key name; Text is the
// UTF-8 text the key produced, if any.
type Key struct {
	Name     string
	Text     string
	Down     bool
	ScanCode int
	Mods     Mod
}

// Focus is a pointer entering (Gained) or leaving the view.
type Focus struct {
	Gained bool
}

func (PointerMove) isEvent()   {}
func (PointerButton) isEvent() {}
func (Wheel) isEvent()         {}
func (Key) isEvent()           {}
func (Focus) isEvent()         {}
