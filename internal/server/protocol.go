package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neboloop/texbridge/internal/input"
)

// Status types sent to viewers as JSON text messages.
const (
	StatusState   = "state"
	StatusLoad    = "load"
	StatusMessage = "message"
	StatusClick   = "click"
	StatusCrash   = "crash"
	StatusClosed  = "closed"
	StatusError   = "error"
)

// Status is a JSON message from the server to viewers.
type Status struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
	URL    string `json:"url,omitempty"`
	Cmd    string `json:"cmd,omitempty"`
	Data   string `json:"data,omitempty"`
}

// clientMessage is a JSON message from a viewer. Type selects which fields
// are read.
type clientMessage struct {
	Type     string   `json:"type"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	DeltaX   float64  `json:"deltaX"`
	DeltaY   float64  `json:"deltaY"`
	Button   string   `json:"button"`
	Down     bool     `json:"down"`
	Key      string   `json:"key"`
	Text     string   `json:"text"`
	ScanCode int      `json:"scanCode"`
	Mods     []string `json:"mods"`
	Gained   bool     `json:"gained"`
	// Cmd names a page command for "listen"; ID a DOM element for "listenClick".
	Cmd string `json:"cmd"`
	ID  string `json:"id"`
}

var errPageOnly = errors.New("send is reserved for the page")

func decodeClientMessage(data []byte) (clientMessage, error) {
	var m clientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// isInput reports whether the message is a host input event.
func (m clientMessage) isInput() bool {
	switch m.Type {
	case "move", "button", "wheel", "key", "focus":
		return true
	}
	return false
}

// event converts an input message to a host input event.
func (m clientMessage) event() (input.Event, error) {
	mods, err := input.ParseMods(m.Mods)
	if err != nil {
		return nil, err
	}
	switch m.Type {
	case "move":
		return input.PointerMove{X: m.X, Y: m.Y, Mods: mods}, nil
	case "button":
		button := input.ParseButton(m.Button)
		if button == input.ButtonNone {
			return nil, fmt.Errorf("unknown button %q", m.Button)
		}
		return input.PointerButton{X: m.X, Y: m.Y, Button: button, Down: m.Down, Mods: mods}, nil
	case "wheel":
		return input.Wheel{X: m.X, Y: m.Y, DeltaX: m.DeltaX, DeltaY: m.DeltaY, Mods: mods}, nil
	case "key":
		if m.Key == "" && m.Text == "" {
			return nil, errors.New("key event needs key or text")
		}
		return input.Key{Name: m.Key, Text: m.Text, Down: m.Down, ScanCode: m.ScanCode, Mods: mods}, nil
	case "focus":
		return input.Focus{Gained: m.Gained}, nil
	}
	return nil, fmt.Errorf("unknown input type %q", m.Type)
}
