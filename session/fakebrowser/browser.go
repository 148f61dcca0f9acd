// Package fakebrowser simulates a browser profile: one cookie jar and one
// durable store shared by any number of tabs, each with its own coordinator.
package fakebrowser

import (
	"fmt"
	"sync"

	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/session/storage"
)

type Browser struct {
	Cookies *session.MemoryJar
	Store   *storage.MemoryStore
	api     session.AuthAPI
	names   session.Names

	mu   sync.Mutex
	tabs []*Tab
	seq  int
}

func New(api session.AuthAPI) *Browser {
	return &Browser{
		Cookies: session.NewMemoryJar(),
		Store:   storage.NewMemoryStore(),
		api:     api,
		names:   session.DefaultNames(),
	}
}

// Tab is one open page with its own coordinator and navigation history.
type Tab struct {
	*session.Coordinator
	ID      string
	Nav     *NavRecorder
	Scratch *session.MemoryScratch
	Store   *storage.View

	browser *Browser
	closed  bool
}

// OpenTab loads a new page and bootstraps its coordinator.
func (b *Browser) OpenTab() (*Tab, error) {
	b.mu.Lock()
	b.seq++
	id := fmt.Sprintf("tab-%d", b.seq)
	b.mu.Unlock()

	tab := &Tab{
		ID:      id,
		Nav:     &NavRecorder{},
		Scratch: session.NewMemoryScratch(),
		Store:   b.Store.View(),
		browser: b,
	}
	c, err := session.New(session.Deps{
		Cookies:   b.Cookies,
		Store:     tab.Store,
		API:       b.api,
		Scratch:   tab.Scratch,
		Navigator: tab.Nav,
	}, session.WithNames(b.names), session.WithTabID(id))
	if err != nil {
		return nil, fmt.Errorf("[fakebrowser OpenTab] %w", err)
	}
	tab.Coordinator = c
	c.Bootstrap()

	b.mu.Lock()
	b.tabs = append(b.tabs, tab)
	b.mu.Unlock()
	return tab, nil
}

// Close fires pagehide and beforeunload, then detaches the tab.
func (t *Tab) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.Teardown() // pagehide
	t.Teardown() // beforeunload
	t.Coordinator.Close()

	b := t.browser
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.tabs {
		if other == t {
			b.tabs = append(b.tabs[:i], b.tabs[i+1:]...)
			break
		}
	}
}

// Tabs returns the tabs that are still open.
func (b *Browser) Tabs() []*Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Tab(nil), b.tabs...)
}

// TabCount returns the raw value of the tab counter.
func (b *Browser) TabCount() string {
	return b.Store.Snapshot()[b.names.TabCountKey]
}

// BroadcastValue returns the raw value of the force-logout key.
func (b *Browser) BroadcastValue() string {
	return b.Store.Snapshot()[b.names.BroadcastKey]
}

// Quit closes every tab and then drops browser-session cookies, as a full
// browser shutdown does.
func (b *Browser) Quit() {
	for _, t := range b.Tabs() {
		t.Close()
	}
	b.Cookies.Clear()
}

// NavRecorder records navigations.
type NavRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (n *NavRecorder) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *NavRecorder) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}

func (n *NavRecorder) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}
