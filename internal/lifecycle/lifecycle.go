// Package lifecycle provides event hooks for engine and bridge state changes.
package lifecycle

import (
	"sync"

	"github.com/neboloop/texbridge/internal/logging"
)

// Event types for lifecycle hooks
type Event string

const (
	// Engine lifecycle events
	EventEngineStarted  Event = "engine_started"
	EventEngineShutdown Event = "engine_shutdown"

	// Bridge lifecycle events
	EventBridgeCreated Event = "bridge_created"
	EventBridgeLive    Event = "bridge_live"
	EventBridgeDormant Event = "bridge_dormant"
	EventBridgeDead    Event = "bridge_dead"
	EventBridgeClosed  Event = "bridge_closed"

	// Server lifecycle events
	EventServerStarted   Event = "server_started"
	EventShutdownStarted Event = "shutdown_started"
)

// Handler is a function that handles a lifecycle event
type Handler func(event Event, data any)

// Manager manages lifecycle event subscriptions and dispatching
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewManager returns an empty manager. Most callers use the package-level
// On and Emit instead.
func NewManager() *Manager {
	return &Manager{handlers: make(map[Event][]Handler)}
}

var global = NewManager()

// On registers a handler for a lifecycle event
func On(event Event, handler Handler) {
	global.On(event, handler)
}

// Emit dispatches an event to all registered handlers
func Emit(event Event, data any) {
	global.Emit(event, data)
}

// Reset drops every global handler. Tests use it between cases.
func Reset() {
	global.mu.Lock()
	global.handlers = make(map[Event][]Handler)
	global.mu.Unlock()
}

// On registers a handler for a lifecycle event
func (m *Manager) On(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit dispatches an event to all registered handlers
func (m *Manager) Emit(event Event, data any) {
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	logging.Debugf("[lifecycle] Emitting event: %s", event)
	for _, h := range handlers {
		// Run handlers synchronously (they can spawn goroutines if needed)
		h(event, data)
	}
}

// BridgeEventData identifies the bridge a lifecycle event is about.
type BridgeEventData struct {
	BridgeID string
	Reason   string
}

// OnBridgeDead registers a handler for bridges that lost their engine.
func OnBridgeDead(handler func(data BridgeEventData)) {
	On(EventBridgeDead, func(e Event, data any) {
		if d, ok := data.(BridgeEventData); ok {
			handler(d)
		}
	})
}

// OnBridgeClosed registers a handler for closed bridges.
func OnBridgeClosed(handler func(data BridgeEventData)) {
	On(EventBridgeClosed, func(e Event, data any) {
		if d, ok := data.(BridgeEventData); ok {
			handler(d)
		}
	})
}

// OnServerStarted is a convenience function to register a server started handler
func OnServerStarted(handler func(addr string)) {
	On(EventServerStarted, func(e Event, data any) {
		addr, _ := data.(string)
		handler(addr)
	})
}

// OnShutdown is a convenience function to register a shutdown handler
func OnShutdown(handler func()) {
	On(EventShutdownStarted, func(e Event, data any) {
		handler()
	})
}
