package input

import (
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/neboloop/texbridge/internal/engine"
)

// WheelScale converts host wheel units into engine scroll ticks.
const WheelScale = 40

// Flags gates which event families are forwarded.
type Flags struct {
	Mouse    bool
	Keyboard bool
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Translate maps a host event onto at most one native submission. The
// boolean is false when the event is filtered by flags or cannot be mapped.
func Translate(ev Event, flags Flags) (engine.NativeEvent, bool) {
	switch e := ev.(type) {
	case PointerMove:
		if !flags.Mouse {
			return engine.NativeEvent{}, false
		}
		return engine.NativeEvent{MouseMove: &engine.MouseMove{
			X:         int(e.X),
			Y:         int(e.Y),
			Modifiers: Modifiers(e.Mods),
		}}, true

	case PointerButton:
		if !flags.Mouse {
			return engine.NativeEvent{}, false
		}
		btn, ok := nativeButton(e.Button)
		if !ok {
			return engine.NativeEvent{}, false
		}
		return engine.NativeEvent{MouseClick: &engine.MouseClick{
			X:          int(e.X),
			Y:          int(e.Y),
			Button:     btn,
			Up:         !e.Down,
			ClickCount: 1,
			Modifiers:  Modifiers(e.Mods),
		}}, true

	case Wheel:
		if !flags.Mouse {
			return engine.NativeEvent{}, false
		}
		return engine.NativeEvent{Wheel: &engine.WheelEvent{
			X:         int(e.X),
			Y:         int(e.Y),
			DeltaX:    int(math.Round(e.DeltaX * WheelScale)),
			DeltaY:    int(math.Round(e.DeltaY * WheelScale)),
			Modifiers: Modifiers(e.Mods),
		}}, true

	case Key:
		if !flags.Keyboard {
			return engine.NativeEvent{}, false
		}
		return engine.NativeEvent{Key: translateKey(e)}, true

	case Focus:
		return engine.NativeEvent{Focus: &engine.FocusEvent{Focused: e.Gained}}, true

	default:
		return engine.NativeEvent{}, false
	}
}

func nativeButton(b Button) (engine.MouseButton, bool) {
	switch b {
	case ButtonLeft:
		return engine.ButtonLeft, true
	case ButtonMiddle:
		return engine.ButtonMiddle, true
	case ButtonRight:
		return engine.ButtonRight, true
	default:
		return 0, false
	}
}

// Modifiers folds host modifier state into the native modifier mask.
func Modifiers(m Mod) engine.Modifiers {
	var out engine.Modifiers
	if m&ModShift != 0 {
		out |= engine.ModShift
	}
	if m&ModCtrl != 0 {
		out |= engine.ModControl
	}
	if m&ModAlt != 0 {
		out |= engine.ModAlt
	}
	if m&ModMeta != 0 {
		out |= engine.ModCommand
	}
	if m&ModNumLock != 0 {
		out |= engine.ModNumLock
	}
	if m&ModCapsLock != 0 {
		out |= engine.ModCapsLock
	}
	return out
}

// translateKey builds the key submission. A press that produced text becomes
// a character event carrying the first UTF-16 unit of the text; a press without
// text is a raw key down; a release is always a raw key up.
func translateKey(k Key) *engine.KeyEvent {
	code, ok := KeyCode(k.Name)
	if !ok {
		code = int(FirstUTF16(k.Text))
	}

	out := &engine.KeyEvent{
		WindowsKeyCode: code,
		NativeKeyCode:  k.ScanCode,
		Modifiers:      Modifiers(k.Mods),
	}
	switch {
	case !k.Down:
		out.Type = engine.KeyUp
	case k.Text != "":
		out.Type = engine.KeyChar
		out.Character = FirstUTF16(k.Text)
		out.UnmodifiedCharacter = out.Character
	default:
		out.Type = engine.KeyRawDown
	}
	return out
}

// FirstUTF16 returns the first UTF-16 code unit of s, or 0 for empty input.
// Characters outside the basic multilingual plane yield their high surrogate.
func FirstUTF16(s string) uint16 {
	if s == "" {
		return 0
	}
	b, err := utf16le.NewEncoder().String(s)
	if err != nil || len(b) < 2 {
		return 0
	}
	return uint16(b[0]) | uint16(b[1])<<8
}
