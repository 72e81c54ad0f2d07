package navigator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/extract"
	"github.com/hazyhaar/chatnav/idgen"
	"github.com/hazyhaar/chatnav/platform"
)

// UIRootID is the id of the injected sidebar. Mutations under it never
// schedule a pass.
const UIRootID = "chat-nav-sidebar"

// SessionConfig configures a Session.
type SessionConfig struct {
	Strategy platform.Strategy
	Tree     *dom.Tree
	URL      string
	PageID   string

	// Debounce is the quiet period after the last qualifying mutation
	// before a pass runs. Default: 1s.
	Debounce time.Duration
	// WarmUp delays the first pass. Default: Strategy.WarmUp().
	WarmUp time.Duration
	// HighlightFor is how long an activation marker stays. Default: 2.5s.
	HighlightFor time.Duration
	// Highlighter defaults to a MirrorHighlighter on Tree.
	Highlighter Highlighter
	// UIRootID defaults to UIRootID.
	UIRootID string

	// OnChange runs on the session goroutine after every committed pass.
	// It must not block and must not call back into the Session.
	OnChange func(Snapshot)

	NewID  idgen.Generator
	Logger *slog.Logger
}

func (c *SessionConfig) defaults() {
	if c.Strategy == nil {
		c.Strategy = platform.For(platform.Unknown)
	}
	if c.Tree == nil {
		c.Tree = dom.New(nil)
	}
	if c.Debounce <= 0 {
		c.Debounce = time.Second
	}
	if c.WarmUp <= 0 {
		c.WarmUp = c.Strategy.WarmUp()
	}
	if c.HighlightFor <= 0 {
		c.HighlightFor = 2500 * time.Millisecond
	}
	if c.Highlighter == nil {
		c.Highlighter = MirrorHighlighter{Tree: c.Tree}
	}
	if c.UIRootID == "" {
		c.UIRootID = UIRootID
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("sess_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session indexes the user messages of one conversation view. All of its
// state is owned by a single goroutine: mutation notifications, timers and
// public calls are posted to it and run one at a time.
type Session struct {
	id     string
	cfg    SessionConfig
	store  *Store
	opts   []extract.Option
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	events chan struct{}
	calls  chan func()
	unsub  func()

	passes atomic.Uint64

	// Loop-owned.
	debounce  *time.Timer
	debounceC <-chan time.Time
	warmUp    *time.Timer
	warmUpC   <-chan time.Time
	marked    *html.Node
	markGen   uint64
}

// StartSession subscribes to the tree and schedules the warm-up pass. The
// session runs until ctx is cancelled or Close is called.
func StartSession(ctx context.Context, cfg SessionConfig) *Session {
	cfg.defaults()
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:     cfg.NewID(),
		cfg:    cfg,
		store:  &Store{},
		opts:   []extract.Option{extract.WithChromePhrases(cfg.Strategy.ChromePhrases()...)},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		events: make(chan struct{}, 1),
		calls:  make(chan func()),
	}
	s.logger = cfg.Logger.With("session", s.id, "platform", cfg.Strategy.ID().String())

	s.warmUp = time.NewTimer(cfg.WarmUp)
	s.warmUpC = s.warmUp.C
	s.unsub = cfg.Tree.Subscribe(s.onMutation)

	go s.loop()
	s.logger.Info("navigator: session started", "url", cfg.URL, "warm_up", cfg.WarmUp)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// URL returns the conversation URL the session was started for.
func (s *Session) URL() string { return s.cfg.URL }

// Platform returns the strategy's platform.
func (s *Session) Platform() platform.ID { return s.cfg.Strategy.ID() }

// Tree returns the mirror tree the session reads.
func (s *Session) Tree() *dom.Tree { return s.cfg.Tree }

// Passes counts extraction passes run so far, committed or not.
func (s *Session) Passes() uint64 { return s.passes.Load() }

// Close stops the session and waits for its goroutine. Pending timers are
// dropped and a live marker is cleared.
func (s *Session) Close() {
	s.unsub()
	s.cancel()
	<-s.done
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the current message index.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID: s.id,
		PageID:    s.cfg.PageID,
		URL:       s.cfg.URL,
		Platform:  s.cfg.Strategy.ID(),
		Seq:       s.store.Seq(),
		Entries:   s.store.Entries(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// Messages returns the stored messages.
func (s *Session) Messages() []extract.Message { return s.store.Messages() }

// Fingerprint returns the fingerprint of the last committed pass.
func (s *Session) Fingerprint() Fingerprint { return s.store.Fingerprint() }

// Search returns the indices of messages containing term, ignoring case.
func (s *Session) Search(term string) []int { return s.store.Search(term) }

// ForceRescan drops any pending debounced pass, unsets the fingerprint and
// runs a pass now. The store is replaced even when nothing changed.
func (s *Session) ForceRescan() error {
	return s.do(func() {
		s.stopDebounce()
		s.store.ResetFingerprint()
		s.pass("rescan")
	})
}

// Activate highlights the message at index. It reports false when the
// index is out of range or its node has left the document.
func (s *Session) Activate(index int) (bool, error) {
	var ok bool
	err := s.do(func() { ok = s.activate(index) })
	return ok, err
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.calls <- func() { fn(); close(finished) }:
	case <-s.ctx.Done():
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post queues fn without waiting. It is dropped once the session stops.
func (s *Session) post(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.ctx.Done():
	}
}

// onMutation runs on the tree writer's goroutine. Only insertions under
// <body> and outside the sidebar count.
func (s *Session) onMutation(m dom.Mutation) {
	if m.Added == 0 {
		return
	}
	if m.Target != nil {
		inUI, inBody := false, false
		s.cfg.Tree.Read(func(*html.Node) {
			for n := m.Target; n != nil; n = n.Parent {
				if n.Type != html.ElementNode {
					continue
				}
				if dom.Attr(n, "id") == s.cfg.UIRootID {
					inUI = true
					return
				}
				if n.Data == "body" {
					inBody = true
				}
			}
		})
		if inUI || !inBody {
			return
		}
	}
	select {
	case s.events <- struct{}{}:
	default:
	}
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.events:
			s.armDebounce()
		case <-s.debounceC:
			s.debounceC = nil
			s.pass("debounce")
		case <-s.warmUpC:
			s.warmUpC = nil
			s.pass("warm-up")
		case fn := <-s.calls:
			fn()
		}
	}
}

func (s *Session) shutdown() {
	s.stopDebounce()
	s.warmUp.Stop()
	if s.marked != nil {
		s.clearMarker()
	}
	s.store.Reset()
	s.logger.Info("navigator: session stopped", "passes", s.passes.Load())
}

// armDebounce (re)starts the debounce window.
func (s *Session) armDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.NewTimer(s.cfg.Debounce)
	s.debounceC = s.debounce.C
}

func (s *Session) stopDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceC = nil
}

// pass runs one extraction and commits it. A panic in a heuristic is logged
// and the pass abandoned.
func (s *Session) pass(reason string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("navigator: pass panicked", "reason", reason, "panic", r)
		}
	}()

	var records []extract.Message
	var candidates int
	s.cfg.Tree.Read(func(root *html.Node) {
		nodes := s.cfg.Strategy.FindCandidates(root)
		candidates = len(nodes)
		records = extract.All(nodes, s.opts...)
	})
	s.passes.Add(1)

	if !s.store.Commit(records) {
		s.logger.Debug("navigator: pass unchanged", "reason", reason, "candidates", candidates)
		return
	}

	snap := s.Snapshot()
	s.logger.Info("navigator: index updated",
		"reason", reason,
		"candidates", candidates,
		"messages", len(snap.Entries),
		"seq", snap.Seq)
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(snap)
	}
}

func (s *Session) activate(index int) bool {
	msg, ok := s.store.Get(index)
	if !ok {
		return false
	}
	if !s.cfg.Tree.Attached(msg.Node) {
		s.logger.Debug("navigator: activate on detached node", "index", index)
		return false
	}
	if s.marked != nil {
		s.clearMarker()
	}
	if err := s.cfg.Highlighter.Highlight(msg.Node, s.cfg.Strategy.ID()); err != nil {
		s.logger.Warn("navigator: highlight failed", "index", index, "error", err)
		return false
	}

	s.marked = msg.Node
	s.markGen++
	gen := s.markGen
	time.AfterFunc(s.cfg.HighlightFor, func() {
		s.post(func() {
			if s.markGen == gen && s.marked != nil {
				s.clearMarker()
			}
		})
	})
	return true
}

func (s *Session) clearMarker() {
	if err := s.cfg.Highlighter.Clear(s.marked); err != nil {
		s.logger.Debug("navigator: clear highlight failed", "error", err)
	}
	s.marked = nil
}
