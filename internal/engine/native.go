package engine

// MouseButton identifies a pointer button in the engine's own numbering.
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonMiddle
	ButtonRight
)

func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return "unknown"
	}
}

// Modifiers is the fixed modifier bit assignment used by every native event.
type Modifiers uint32

const (
	ModCapsLock Modifiers = 1 << 0
	ModShift    Modifiers = 1 << 1
	ModControl  Modifiers = 1 << 2
	ModAlt      Modifiers = 1 << 3
	ModCommand  Modifiers = 1 << 7
	ModNumLock  Modifiers = 1 << 8
)

// Has reports whether all bits of m are set.
func (mods Modifiers) Has(m Modifiers) bool {
	return mods&m == m
}

// KeyType distinguishes the three native key submissions.
type KeyType int

const (
	// KeyRawDown is a key press that produces no text.
	KeyRawDown KeyType = iota
	// KeyUp is a key release.
	KeyUp
	// KeyChar inserts Character as text.
	KeyChar
)

func (k KeyType) String() string {
	switch k {
	case KeyRawDown:
		return "rawKeyDown"
	case KeyUp:
		return "keyUp"
	case KeyChar:
		return "char"
	default:
		return "unknown"
	}
}

// NativeEvent is one event submission call on a Session. Exactly one of the
// pointer fields is non-nil.
type NativeEvent struct {
	MouseMove  *MouseMove
	MouseClick *MouseClick
	Wheel      *WheelEvent
	Key        *KeyEvent
	Focus      *FocusEvent
}

// MouseMove moves the pointer to X,Y in viewport coordinates.
type MouseMove struct {
	X, Y      int
	Modifiers Modifiers
}

// MouseClick presses or releases a button at X,Y.
type MouseClick struct {
	X, Y       int
	Button     MouseButton
	Up         bool
	ClickCount int
	Modifiers  Modifiers
}

// WheelEvent scrolls by DeltaX,DeltaY at X,Y. Deltas are already scaled to
// engine ticks.
type WheelEvent struct {
	X, Y           int
	DeltaX, DeltaY int
	Modifiers      Modifiers
}

// KeyEvent is a keyboard submission. Character is a single UTF-16 code unit.
type KeyEvent struct {
	Type                KeyType
	WindowsKeyCode      int
	NativeKeyCode       int
	Character           uint16
	UnmodifiedCharacter uint16
	Modifiers           Modifiers
}

// FocusEvent tells the engine the view gained or lost focus.
type FocusEvent struct {
	Focused bool
}
