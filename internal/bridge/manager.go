package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry wraps a bridge with the metadata the manager tracks for it.
type Entry struct {
	ID        string
	Owner     string // Client that created this bridge (for cleanup)
	CreatedAt time.Time
	Bridge    *Bridge
}

// Manager owns every bridge of a host process.
type Manager struct {
	mu sync.RWMutex

	tex     TextureScheduler
	bridges map[string]*Entry
	owners  map[string]map[string]bool // owner -> set of bridge IDs
}

// NewManager returns an empty manager whose bridges upload into tex.
func NewManager(tex TextureScheduler) *Manager {
	return &Manager{
		tex:     tex,
		bridges: make(map[string]*Entry),
		owners:  make(map[string]map[string]bool),
	}
}

// Create opens a bridge. The owner parameter associates it with a client for
// cleanup; pass an empty string if no ownership tracking is needed.
func (m *Manager) Create(ctx context.Context, opts Options, owner string) (*Entry, error) {
	b, err := New(ctx, opts, m.tex)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:        b.ID(),
		Owner:     owner,
		CreatedAt: time.Now(),
		Bridge:    b,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bridges[entry.ID] = entry
	if owner != "" {
		if m.owners[owner] == nil {
			m.owners[owner] = make(map[string]bool)
		}
		m.owners[owner][entry.ID] = true
	}
	return entry, nil
}

// Get returns a bridge by ID. If id is empty, returns the most recently
// created bridge.
func (m *Manager) Get(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id == "" {
		var latest *Entry
		for _, e := range m.bridges {
			if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
				latest = e
			}
		}
		if latest == nil {
			return nil, fmt.Errorf("no bridges open")
		}
		return latest, nil
	}

	e, ok := m.bridges[id]
	if !ok {
		return nil, fmt.Errorf("bridge not found: %s", id)
	}
	return e, nil
}

// List returns all open bridges, oldest first.
func (m *Manager) List() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.bridges))
	for _, e := range m.bridges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of open bridges.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bridges)
}

// Close closes and removes a bridge by ID.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.bridges[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("bridge not found: %s", id)
	}
	m.removeLocked(e)
	m.mu.Unlock()

	return e.Bridge.Close()
}

// CloseOwner closes every bridge created by owner and returns how many were
// closed.
func (m *Manager) CloseOwner(owner string) int {
	m.mu.Lock()
	ids := m.owners[owner]
	var closing []*Entry
	for id := range ids {
		if e, ok := m.bridges[id]; ok {
			closing = append(closing, e)
		}
	}
	for _, e := range closing {
		m.removeLocked(e)
	}
	delete(m.owners, owner)
	m.mu.Unlock()

	for _, e := range closing {
		e.Bridge.Close()
	}
	return len(closing)
}

// CloseAll closes every bridge. Called on shutdown before the engine stops.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Entry, 0, len(m.bridges))
	for _, e := range m.bridges {
		all = append(all, e)
	}
	m.bridges = make(map[string]*Entry)
	m.owners = make(map[string]map[string]bool)
	m.mu.Unlock()

	for _, e := range all {
		e.Bridge.Close()
	}
}

func (m *Manager) removeLocked(e *Entry) {
	delete(m.bridges, e.ID)
	if e.Owner != "" {
		if set := m.owners[e.Owner]; set != nil {
			delete(set, e.ID)
			if len(set) == 0 {
				delete(m.owners, e.Owner)
			}
		}
	}
}

// Tick pumps and syncs every bridge once and returns the IDs of bridges that
// scheduled a new upload.
func (m *Manager) Tick(ctx context.Context) []string {
	var updated []string
	for _, e := range m.List() {
		if err := e.Bridge.Pump(ctx); err != nil {
			continue
		}
		ok, err := e.Bridge.Sync()
		if err != nil {
			log.Warnf("%s sync: %v", e.ID, err)
			continue
		}
		if ok {
			updated = append(updated, e.ID)
		}
	}
	return updated
}
