// Package storage provides DurableStore implementations for the session
// coordinator.
package storage

import (
	"sort"
	"sync"

	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/session"
)

// MemoryStore is a durable store shared by every tab of a simulated
// browser profile. Each tab talks to it through its own View, and changes
// are announced to every view except the one that made them. Handlers run
// synchronously on the writer's goroutine, after the store lock is released.
type MemoryStore struct {
	mu          sync.Mutex
	data        map[string]string
	watchers    map[uint64]watcher
	nextID      uint64
	unavailable bool
}

type watcher struct {
	viewID uint64
	fn     func(session.StorageEvent)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]string),
		watchers: make(map[uint64]watcher),
	}
}

// View returns a new tab-scoped handle on the store. A view must be used by
// a single coordinator.
func (m *MemoryStore) View() *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return &View{store: m, id: m.nextID}
}

// SetAvailable simulates storage being disabled (false) or re-enabled.
func (m *MemoryStore) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = !available
}

// Snapshot returns a copy of the stored keys and values.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return "", errors.ErrStoreUnavailable
	}
	return m.data[key], nil
}

func (m *MemoryStore) write(origin uint64, key, value string, remove bool) error {
	m.mu.Lock()
	if m.unavailable {
		m.mu.Unlock()
		return errors.ErrStoreUnavailable
	}
	old, existed := m.data[key]
	if remove {
		delete(m.data, key)
	} else {
		m.data[key] = value
	}
	changed := (remove && existed) || (!remove && (!existed || old != value))
	var targets []watcher
	if changed {
		targets = m.watchersExcept(origin)
	}
	m.mu.Unlock()

	ev := session.StorageEvent{Key: key, OldValue: old, NewValue: value, Removed: remove}
	for _, w := range targets {
		w.fn(ev)
	}
	return nil
}

func (m *MemoryStore) watchersExcept(origin uint64) []watcher {
	ids := make([]uint64, 0, len(m.watchers))
	for id, w := range m.watchers {
		if w.viewID != origin {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]watcher, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.watchers[id])
	}
	return out
}

func (m *MemoryStore) watch(viewID uint64, fn func(session.StorageEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.watchers[id] = watcher{viewID: viewID, fn: fn}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
}

// View is one tab's handle on a MemoryStore.
type View struct {
	store *MemoryStore
	id    uint64
}

var _ session.DurableStore = (*View)(nil)

func (v *View) Get(key string) (string, error) {
	return v.store.get(key)
}

func (v *View) Set(key, value string) error {
	return v.store.write(v.id, key, value, false)
}

func (v *View) Remove(key string) error {
	return v.store.write(v.id, key, "", true)
}

func (v *View) Watch(fn func(session.StorageEvent)) func() {
	return v.store.watch(v.id, fn)
}
