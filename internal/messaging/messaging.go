// Package messaging routes commands sent from page script to host callbacks.
//
// Page script calls avg.send(cmd, data) with two strings. The engine delivers
// the pair as a JSON payload through a native binding, and the Bridge invokes
// the callback registered under cmd with data. The reserved command "onclick"
// carries a DOM element id and is routed to click callbacks instead.
package messaging

import (
	"sort"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/neboloop/texbridge/internal/logging"
)

// ClickCommand is the command the click hook script sends.
const ClickCommand = "onclick"

var log = logging.WithComponent("messaging")

// Callback receives the data string of a page command.
type Callback func(data string)

// ClickCallback receives the id of the clicked element.
type ClickCallback func(id string)

// Bridge is the callback registry for one browser bridge.
type Bridge struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
	clicks    map[string]ClickCallback
}

// New returns an empty registry.
func New() *Bridge {
	return &Bridge{
		callbacks: make(map[string]Callback),
		clicks:    make(map[string]ClickCallback),
	}
}

// Register installs fn for cmd, replacing any earlier callback.
func (b *Bridge) Register(cmd string, fn Callback) {
	if fn == nil {
		b.Unregister(cmd)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks[cmd] = fn
}

// Unregister removes the callback for cmd. Removing a missing name only logs.
func (b *Bridge) Unregister(cmd string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.callbacks[cmd]; !ok {
		log.Warnf("tried to remove nonexistent callback %q", cmd)
		return
	}
	delete(b.callbacks, cmd)
}

// RegisterClick installs fn for clicks on the element with the given id.
func (b *Bridge) RegisterClick(id string, fn ClickCallback) {
	if fn == nil {
		b.UnregisterClick(id)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clicks[id] = fn
}

// UnregisterClick removes the click callback for id.
func (b *Bridge) UnregisterClick(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clicks[id]; !ok {
		log.Warnf("tried to remove nonexistent click callback %q", id)
		return
	}
	delete(b.clicks, id)
}

// Commands returns the registered command names, sorted.
func (b *Bridge) Commands() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.callbacks))
	for name := range b.callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch invokes the callback registered for cmd and reports whether one
// was found. Callbacks run without the registry lock held, so they may
// register or unregister callbacks themselves.
func (b *Bridge) Dispatch(cmd, data string) bool {
	b.mu.RLock()
	var fn func()
	if cmd == ClickCommand {
		if cb, ok := b.clicks[data]; ok {
			fn = func() { cb(data) }
		}
	}
	if fn == nil {
		if cb, ok := b.callbacks[cmd]; ok {
			fn = func() { cb(data) }
		}
	}
	b.mu.RUnlock()

	if fn == nil {
		log.Debugf("no callback for command %q", cmd)
		return false
	}
	fn()
	return true
}

// DispatchPayload decodes a binding payload of the form
// {"cmd":"...","data":"..."} and dispatches it. Malformed payloads are logged
// and dropped.
func (b *Bridge) DispatchPayload(raw string) bool {
	cmd, data, ok := DecodePayload(raw)
	if !ok {
		log.Warnf("rejected malformed message payload: %.120s", raw)
		return false
	}
	return b.Dispatch(cmd, data)
}

// DecodePayload extracts cmd and data from a binding payload. Both fields must
// be present and be JSON strings.
func DecodePayload(raw string) (cmd, data string, ok bool) {
	if !gjson.Valid(raw) {
		return "", "", false
	}
	res := gjson.GetMany(raw, "cmd", "data")
	if res[0].Type != gjson.String || res[1].Type != gjson.String {
		return "", "", false
	}
	return res[0].Str, res[1].Str, true
}
