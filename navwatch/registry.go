package navwatch

import (
	"sort"
	"sync"

	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/platform"
)

// PageInfo summarises one observed tab.
type PageInfo struct {
	ID       string      `json:"id"`
	URL      string      `json:"url"`
	Platform platform.ID `json:"platform"`
	// Active is true while a conversation session is running.
	Active   bool   `json:"active"`
	Messages int    `json:"messages"`
	Seq      uint64 `json:"seq"`
}

// Registry resolves page IDs to their navigators. The HTTP and MCP
// surfaces only depend on it.
type Registry interface {
	Pages() []PageInfo
	Navigator(id string) (*navigator.Navigator, bool)
}

func infoOf(id string, nav *navigator.Navigator) PageInfo {
	snap := nav.Snapshot()
	return PageInfo{
		ID:       id,
		URL:      snap.URL,
		Platform: snap.Platform,
		Active:   nav.Session() != nil,
		Messages: len(snap.Entries),
		Seq:      snap.Seq,
	}
}

// StaticRegistry serves navigators that are not backed by a browser, such
// as fixtures loaded from files.
type StaticRegistry struct {
	mu   sync.RWMutex
	navs map[string]*navigator.Navigator
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{navs: make(map[string]*navigator.Navigator)}
}

// Add registers nav under id, replacing any previous entry.
func (r *StaticRegistry) Add(id string, nav *navigator.Navigator) {
	r.mu.Lock()
	r.navs[id] = nav
	r.mu.Unlock()
}

func (r *StaticRegistry) Navigator(id string) (*navigator.Navigator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nav, ok := r.navs[id]
	return nav, ok
}

func (r *StaticRegistry) Pages() []PageInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PageInfo, 0, len(r.navs))
	for id, nav := range r.navs {
		out = append(out, infoOf(id, nav))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close closes every registered navigator.
func (r *StaticRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, nav := range r.navs {
		nav.Close()
		delete(r.navs, id)
	}
}
