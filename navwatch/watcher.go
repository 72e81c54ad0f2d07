// Package navwatch is the chatnav daemon: it drives Chrome over CDP, keeps
// a mirror and a message Navigator per chat tab, and exposes the message
// index to sinks, an HTTP API and MCP tools.
package navwatch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/navwatch/internal/browser"
	"github.com/hazyhaar/chatnav/navwatch/internal/config"
	"github.com/hazyhaar/chatnav/navwatch/internal/observer"
	"github.com/hazyhaar/chatnav/navwatch/internal/sink"
)

// page is one observed tab and everything bound to it.
type page struct {
	cfg     config.PageConfig
	tab     *browser.Tab
	nav     *navigator.Navigator
	obs     *observer.Observer
	overlay *observer.Overlay
	unsub   func()
	cancel  context.CancelFunc
}

// Watcher owns the browser and the observed pages.
type Watcher struct {
	cfg    *config.Config
	mgr    *browser.Manager
	out    *sink.Async
	logger *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	pages map[string]*page
}

// New creates a Watcher. Snapshots of every page go to sinks.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		UserDataDir:      cfg.Browser.UserDataDir,
		Bin:              cfg.Browser.Bin,
		Mode:             browser.ParseMode(cfg.Browser.Mode),
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})

	return &Watcher{
		cfg:    cfg,
		mgr:    mgr,
		out:    sink.NewAsync(sink.NewRouter(logger, sinks...), 256, logger),
		logger: logger,
		pages:  make(map[string]*page),
	}
}

// Start launches the browser and opens every configured page. A page that
// fails to open is logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("navwatch: start browser: %w", err)
	}

	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.mgr.SetRecycleHooks(browser.RecycleHooks{
		BeforeRecycle: w.detachAll,
		AfterRecycle:  func(*rod.Browser) { w.reattachAll() },
	})

	for _, p := range w.cfg.Pages {
		if err := w.ObservePage(ctx, p); err != nil {
			w.logger.Error("navwatch: observe page failed", "id", p.ID, "url", p.URL, "error", err)
		}
	}
	return nil
}

// ObservePage opens a tab for p and starts indexing it. Observing an ID
// that is already open replaces it.
func (w *Watcher) ObservePage(ctx context.Context, p config.PageConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.pages[p.ID]; ok {
		w.closePageLocked(old)
	}
	pg, err := w.openPageLocked(ctx, p)
	if err != nil {
		return err
	}
	w.pages[p.ID] = pg
	w.logger.Info("navwatch: observing page", "id", p.ID, "url", p.URL)
	return nil
}

// UnobservePage stops indexing id and closes its tab.
func (w *Watcher) UnobservePage(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	pg, ok := w.pages[id]
	if !ok {
		return false
	}
	w.closePageLocked(pg)
	delete(w.pages, id)
	return true
}

// ReloadPages makes the observed set match pages: new IDs are opened,
// missing ones closed, and changed URLs reopened.
func (w *Watcher) ReloadPages(pages []config.PageConfig) error {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		return fmt.Errorf("navwatch: reload before start")
	}

	want := make(map[string]config.PageConfig, len(pages))
	for _, p := range pages {
		want[p.ID] = p
	}

	w.mu.Lock()
	var stale []string
	for id, pg := range w.pages {
		if p, ok := want[id]; !ok || p.URL != pg.cfg.URL {
			stale = append(stale, id)
		}
	}
	var fresh []config.PageConfig
	for id, p := range want {
		if _, ok := w.pages[id]; !ok {
			fresh = append(fresh, p)
		}
	}
	w.mu.Unlock()

	for _, id := range stale {
		w.UnobservePage(id)
		if p, ok := want[id]; ok {
			fresh = append(fresh, p)
		}
	}
	var firstErr error
	for _, p := range fresh {
		if err := w.ObservePage(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WatchDB keeps the observed set in sync with the page table until ctx is
// cancelled. It blocks.
func (w *Watcher) WatchDB(ctx context.Context, db *sql.DB, interval time.Duration) {
	config.WatchPages(ctx, db, interval, w.logger, w.ReloadPages)
}

// Stop closes every page, the sinks and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for id, pg := range w.pages {
		w.closePageLocked(pg)
		delete(w.pages, id)
	}
	w.mu.Unlock()

	if err := w.out.Close(); err != nil {
		w.logger.Warn("navwatch: close sinks", "error", err)
	}
	if err := w.mgr.Close(); err != nil {
		w.logger.Warn("navwatch: close browser", "error", err)
	}
}

// Pages lists the observed tabs ordered by ID.
func (w *Watcher) Pages() []PageInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]PageInfo, 0, len(w.pages))
	for id, pg := range w.pages {
		out = append(out, infoOf(id, pg.nav))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Navigator returns the navigator of page id.
func (w *Watcher) Navigator(id string) (*navigator.Navigator, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pg, ok := w.pages[id]
	if !ok {
		return nil, false
	}
	return pg.nav, true
}

func (w *Watcher) openPageLocked(ctx context.Context, p config.PageConfig) (*page, error) {
	tab, err := browser.OpenTab(ctx, w.mgr, p.URL, p.ID)
	if err != nil {
		return nil, fmt.Errorf("navwatch: open tab %s: %w", p.ID, err)
	}

	pctx, cancel := context.WithCancel(ctx)
	logger := w.logger.With("page", p.ID)
	tree := dom.New(nil)

	nav := navigator.New(pctx, navigator.Config{
		Tree:         tree,
		PageID:       p.ID,
		Debounce:     w.cfg.Navigator.Debounce,
		HighlightFor: w.cfg.Navigator.HighlightFor,
		WarmUp:       w.cfg.Navigator.WarmUp,
		Highlighter:  observer.NewHighlighter(tab, tree),
		Logger:       logger,
	})
	unsub := nav.OnStoreChanged(func(snap navigator.Snapshot) {
		w.out.Send(pctx, snap)
	})

	var overlay *observer.Overlay
	if w.cfg.Overlay {
		overlay = observer.NewOverlay(observer.OverlayConfig{
			Page:      tab,
			Navigator: nav,
			Logger:    logger,
		})
		overlay.Start(pctx)
	}

	obs := observer.New(observer.Config{
		Tab:            tab,
		Tree:           tree,
		Navigator:      nav,
		Overlay:        overlay,
		DebounceWindow: w.cfg.Observer.Window,
		DebounceMax:    w.cfg.Observer.MaxBuffer,
		ResyncInterval: w.cfg.Observer.ResyncInterval,
		Logger:         logger,
	})
	if err := obs.Start(pctx); err != nil {
		unsub()
		cancel()
		nav.Close()
		tab.Close()
		return nil, fmt.Errorf("navwatch: start observer %s: %w", p.ID, err)
	}

	return &page{
		cfg:     p,
		tab:     tab,
		nav:     nav,
		obs:     obs,
		overlay: overlay,
		unsub:   unsub,
		cancel:  cancel,
	}, nil
}

func (w *Watcher) closePageLocked(pg *page) {
	pg.obs.Stop()
	pg.unsub()
	pg.nav.Close()
	pg.cancel()
	if pg.overlay != nil {
		<-pg.overlay.Done()
	}
	if err := pg.tab.Close(); err != nil {
		w.logger.Debug("navwatch: close tab", "id", pg.cfg.ID, "error", err)
	}
}

// detachAll runs before a browser recycle: the tabs are about to die.
func (w *Watcher) detachAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, pg := range w.pages {
		pg.obs.Stop()
		pg.unsub()
		pg.nav.Close()
		pg.cancel()
	}
}

// reattachAll reopens every page on the recycled browser.
func (w *Watcher) reattachAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, pg := range w.pages {
		fresh, err := w.openPageLocked(w.ctx, pg.cfg)
		if err != nil {
			w.logger.Error("navwatch: reattach page failed", "id", id, "error", err)
			delete(w.pages, id)
			continue
		}
		w.pages[id] = fresh
	}
}
