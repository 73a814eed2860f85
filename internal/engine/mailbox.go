package engine

import (
	"sync"

	"github.com/neboloop/texbridge/internal/logging"
)

// EventKind identifies a notification posted by an engine goroutine.
type EventKind int

const (
	EventLoadEnd EventKind = iota
	EventPluginCrashed
	EventRenderProcessTerminated
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventLoadEnd:
		return "load_end"
	case EventPluginCrashed:
		return "plugin_crashed"
	case EventRenderProcessTerminated:
		return "render_process_terminated"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is one engine notification. Detail carries the plugin path or the
// termination reason; Payload carries the raw message sent from page script.
type Event struct {
	Kind    EventKind
	Detail  string
	Payload string
}

// DefaultMailboxSize bounds how many events wait between two pumps.
const DefaultMailboxSize = 1024

// Mailbox is the one-way channel from engine goroutines back to the bridge
// that owns the session. Engines post; the owner drains on its own goroutine,
// so callbacks never run on an engine thread and the engine never holds a
// reference to its owner.
type Mailbox struct {
	mu      sync.Mutex
	events  []Event
	limit   int
	dropped int
	closed  bool
}

// NewMailbox returns a mailbox holding at most limit pending events.
func NewMailbox(limit int) *Mailbox {
	if limit <= 0 {
		limit = DefaultMailboxSize
	}
	return &Mailbox{limit: limit}
}

// Post queues an event. Messages beyond the limit are dropped; lifecycle
// events are always kept.
func (m *Mailbox) Post(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if ev.Kind == EventMessage && len(m.events) >= m.limit {
		m.dropped++
		if m.dropped == 1 || m.dropped%100 == 0 {
			logging.Warnf("[engine] mailbox full, %d messages dropped", m.dropped)
		}
		return
	}
	m.events = append(m.events, ev)
}

// Drain removes and returns every pending event in posting order.
func (m *Mailbox) Drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	out := m.events
	m.events = nil
	return out
}

// Len returns the number of pending events.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Close discards pending events and ignores later posts. Sessions that
// outlive their owner post into a closed mailbox harmlessly.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
}
