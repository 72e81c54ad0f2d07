// Package navigator keeps an index of the user's own messages for one chat
// tab. A Navigator follows the tab's URL; while the URL is a conversation
// view of a known platform it runs a Session, which rescans the mirrored
// DOM after mutations settle and publishes the index to listeners.
package navigator

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/extract"
	"github.com/hazyhaar/chatnav/idgen"
	"github.com/hazyhaar/chatnav/platform"
)

// Config configures a Navigator.
type Config struct {
	// Tree is the tab's mirror. Required.
	Tree   *dom.Tree
	PageID string

	Debounce     time.Duration
	HighlightFor time.Duration
	// WarmUp overrides the platform warm-up when positive.
	WarmUp      time.Duration
	Highlighter Highlighter

	NewID  idgen.Generator
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Tree == nil {
		c.Tree = dom.New(nil)
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("sess_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Listener receives every committed snapshot. Listeners run on the session
// goroutine: they must not block and must not call the Navigator.
type Listener func(Snapshot)

// Navigator owns the session lifecycle of one tab.
type Navigator struct {
	cfg    Config
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	url      string
	platform platform.ID
	session  *Session

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextL     int
}

// New creates a dormant Navigator. Sessions it starts are bound to ctx.
func New(ctx context.Context, cfg Config) *Navigator {
	cfg.defaults()
	return &Navigator{
		cfg:       cfg,
		ctx:       ctx,
		logger:    cfg.Logger,
		listeners: make(map[int]Listener),
	}
}

// OnStoreChanged registers fn for every committed pass of any session of
// this navigator. The returned function unregisters it.
func (n *Navigator) OnStoreChanged(fn Listener) (cancel func()) {
	n.lmu.Lock()
	id := n.nextL
	n.nextL++
	n.listeners[id] = fn
	n.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.lmu.Lock()
			delete(n.listeners, id)
			n.lmu.Unlock()
		})
	}
}

func (n *Navigator) publish(snap Snapshot) {
	n.lmu.RLock()
	fns := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.lmu.RUnlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Navigate reacts to a URL change. Entering a conversation view starts a
// session; leaving it, switching platform or switching conversation stops
// the current one, which drops its timers and empties its store. Query and
// fragment changes inside the same conversation keep the session.
func (n *Navigator) Navigate(rawURL string) {
	id := platform.Classify(rawURL)
	strategy := platform.For(id)
	inView := strategy.IsConversationView(rawURL)

	n.mu.Lock()
	defer n.mu.Unlock()

	prev := n.session
	if prev != nil && inView && id == n.platform && samePath(prev.URL(), rawURL) {
		n.url = rawURL
		return
	}
	if prev != nil {
		prev.Close()
		n.session = nil
		n.logger.Info("navigator: left conversation", "url", prev.URL(), "next", rawURL)
	}

	n.url = rawURL
	n.platform = id
	if !inView {
		if id == platform.Unknown {
			n.logger.Debug("navigator: dormant", "url", rawURL)
		}
		return
	}

	n.session = StartSession(n.ctx, SessionConfig{
		Strategy:     strategy,
		Tree:         n.cfg.Tree,
		URL:          rawURL,
		PageID:       n.cfg.PageID,
		Debounce:     n.cfg.Debounce,
		WarmUp:       n.cfg.WarmUp,
		HighlightFor: n.cfg.HighlightFor,
		Highlighter:  n.cfg.Highlighter,
		OnChange:     n.publish,
		NewID:        n.cfg.NewID,
		Logger:       n.logger.With("page", n.cfg.PageID),
	})
}

// Close stops the current session, if any.
func (n *Navigator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.session != nil {
		n.session.Close()
		n.session = nil
	}
}

// Session returns the running session, or nil when dormant.
func (n *Navigator) Session() *Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session
}

// URL returns the last navigated URL.
func (n *Navigator) URL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url
}

// Platform returns the platform of the last navigated URL.
func (n *Navigator) Platform() platform.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.platform
}

// Tree returns the mirror the navigator reads.
func (n *Navigator) Tree() *dom.Tree { return n.cfg.Tree }

// Snapshot returns the current index, or an empty one when dormant.
func (n *Navigator) Snapshot() Snapshot {
	if s := n.Session(); s != nil {
		return s.Snapshot()
	}
	return Snapshot{
		PageID:    n.cfg.PageID,
		URL:       n.URL(),
		Platform:  n.Platform(),
		Entries:   []Entry{},
		Timestamp: time.Now().UnixMilli(),
	}
}

// Messages returns the stored messages of the running session.
func (n *Navigator) Messages() ([]extract.Message, error) {
	s := n.Session()
	if s == nil {
		return nil, ErrNoSession
	}
	return s.Messages(), nil
}

// Search returns the indices of messages containing term, ignoring case.
func (n *Navigator) Search(term string) ([]int, error) {
	s := n.Session()
	if s == nil {
		return nil, ErrNoSession
	}
	return s.Search(term), nil
}

// Activate highlights the message at index.
func (n *Navigator) Activate(index int) (bool, error) {
	s := n.Session()
	if s == nil {
		return false, ErrNoSession
	}
	return s.Activate(index)
}

// ForceRescan runs a pass now, bypassing the debounce and the fingerprint.
func (n *Navigator) ForceRescan() error {
	s := n.Session()
	if s == nil {
		return ErrNoSession
	}
	return s.ForceRescan()
}

// samePath reports whether a and b address the same host and path.
func samePath(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ua.Host == ub.Host && ua.Path == ub.Path && ua.Opaque == ub.Opaque
}
