// Package observer keeps a tab's mirror tree in step with the live page.
// An injected MutationObserver reports child list changes and SPA
// navigations over a CDP binding; after each quiet window the observer
// re-reads the document, merges it into the mirror and tells the tab's
// Navigator about URL changes.
package observer

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/navwatch/internal/browser"
	"github.com/hazyhaar/chatnav/navwatch/mutation"
)

//go:embed observer.js
var observerJS string

const (
	recordBinding = "__chatnav_binding"
	uiBinding     = "__chatnav_ui"
)

// Page is the part of a tab the observer drives.
type Page interface {
	OuterHTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Eval(ctx context.Context, js string, args ...any) error
}

// Config configures an Observer.
type Config struct {
	// Tab supplies the CDP events. Page defaults to it.
	Tab  *browser.Tab
	Page Page

	Tree      *dom.Tree
	Navigator *navigator.Navigator
	// Overlay, when set, is redrawn on navigation and receives sidebar actions.
	Overlay *Overlay

	DebounceWindow time.Duration
	DebounceMax    int
	// ResyncInterval forces a full resync even without records. Default: 1m.
	ResyncInterval time.Duration
	// CallTimeout bounds each CDP round trip. Default: 10s.
	CallTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Page == nil && c.Tab != nil {
		c.Page = c.Tab
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Observer mirrors one tab.
type Observer struct {
	cfg    Config
	page   Page
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	rawCh  chan []mutation.Record
	loadCh chan struct{}
	uiCh   chan mutation.Action

	debouncer *debouncer
	seq       atomic.Uint64
	resyncs   atomic.Uint64
}

// New creates an Observer. Start attaches it to the page.
func New(cfg Config) *Observer {
	cfg.defaults()
	o := &Observer{
		cfg:    cfg,
		page:   cfg.Page,
		logger: cfg.Logger,
		done:   make(chan struct{}),
		rawCh:  make(chan []mutation.Record, 256),
		loadCh: make(chan struct{}, 1),
		uiCh:   make(chan mutation.Action, 16),
	}
	o.debouncer = newDebouncer(debounceConfig{
		Window:    cfg.DebounceWindow,
		MaxBuffer: cfg.DebounceMax,
	}, o.onFlush)
	return o
}

// Start installs the bindings and the page script, performs the first
// resync and runs the observer until ctx is cancelled or Stop is called.
func (o *Observer) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	if o.cfg.Tab != nil {
		page := o.cfg.Tab.Page
		for _, name := range []string{recordBinding, uiBinding} {
			if err := (proto.RuntimeAddBinding{Name: name}).Call(page); err != nil {
				o.logger.Warn("observer: add binding", "name", name, "error", err)
			}
		}
		go o.listen()
	}

	if err := o.inject(); err != nil {
		o.cancel()
		return fmt.Errorf("observer: start: %w", err)
	}
	o.resync("start")
	if u, err := o.location(); err == nil {
		o.navigate(u)
	}

	go o.loop()
	return nil
}

// Stop detaches the observer and waits for its loop.
func (o *Observer) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
}

// Resyncs counts mirror refreshes.
func (o *Observer) Resyncs() uint64 { return o.resyncs.Load() }

// listen forwards binding calls and page loads to the loop.
func (o *Observer) listen() {
	o.cfg.Tab.Page.Context(o.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			switch e.Name {
			case recordBinding:
				recs, err := mutation.DecodeRecords(e.Payload)
				if err != nil {
					o.logger.Warn("observer: bad record payload", "error", err)
					return
				}
				select {
				case o.rawCh <- recs:
				case <-o.ctx.Done():
				}
			case uiBinding:
				a, err := mutation.DecodeAction(e.Payload)
				if err != nil {
					o.logger.Warn("observer: bad ui payload", "error", err)
					return
				}
				select {
				case o.uiCh <- a:
				default:
					o.logger.Debug("observer: ui action dropped", "action", a.Action)
				}
			}
		},
		func(*proto.PageLoadEventFired) {
			select {
			case o.loadCh <- struct{}{}:
			default:
			}
		},
	)()
}

func (o *Observer) loop() {
	defer close(o.done)

	ticker := time.NewTicker(o.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case recs := <-o.rawCh:
			for _, r := range recs {
				o.debouncer.add(r)
			}

		case <-o.debouncer.timerC():
			o.debouncer.flush()

		case <-o.loadCh:
			// A full load discards the injected script.
			if err := o.inject(); err != nil {
				o.logger.Error("observer: re-inject after load", "error", err)
			}
			if o.cfg.Overlay != nil && o.cfg.Navigator != nil {
				o.cfg.Overlay.Push(o.cfg.Navigator.Snapshot())
			}

		case <-ticker.C:
			if o.debouncer.pending() == 0 {
				o.resync("interval")
			}

		case a := <-o.uiCh:
			if o.cfg.Overlay != nil {
				o.cfg.Overlay.Handle(a)
			}
		}
	}
}

func (o *Observer) inject() error {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.CallTimeout)
	defer cancel()
	if err := o.page.Eval(ctx, observerJS); err != nil {
		return fmt.Errorf("inject observer.js: %w", err)
	}
	return nil
}

func (o *Observer) location() (string, error) {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.CallTimeout)
	defer cancel()
	return o.page.Location(ctx)
}

// onFlush handles one debounced batch: structural changes refresh the
// mirror first, then the last navigation is applied.
func (o *Observer) onFlush(records []mutation.Record) {
	batch := mutation.Batch{
		Seq:       o.seq.Add(1),
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	}
	if o.cfg.Tab != nil {
		batch.PageID = o.cfg.Tab.PageID
	}
	o.logger.Debug("observer: batch", "seq", batch.Seq, "records", len(records))

	if batch.NeedsResync() {
		o.resync("mutation")
	}
	if u, ok := batch.LastNavigation(); ok {
		o.navigate(u)
	}
}

// resync replaces the mirror's content with the live document.
func (o *Observer) resync(reason string) {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.CallTimeout)
	defer cancel()

	src, err := o.page.OuterHTML(ctx)
	if err != nil {
		o.logger.Warn("observer: read document", "reason", reason, "error", err)
		return
	}
	doc, err := parseMirror(src)
	if err != nil {
		o.logger.Warn("observer: parse document", "reason", reason, "error", err)
		return
	}
	o.cfg.Tree.Sync(doc)
	o.resyncs.Add(1)
	o.logger.Debug("observer: resynced", "reason", reason, "bytes", len(src))
}

func (o *Observer) navigate(u string) {
	if o.cfg.Navigator == nil || u == "" || u == o.cfg.Navigator.URL() {
		return
	}
	o.cfg.Navigator.Navigate(u)
	if o.cfg.Overlay != nil {
		o.cfg.Overlay.Push(o.cfg.Navigator.Snapshot())
	}
}

// parseMirror parses a serialised document and drops the sidebar so the
// mirror only holds the host page.
func parseMirror(src string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	if ui := dom.ByID(doc, navigator.UIRootID); ui != nil && ui.Parent != nil {
		ui.Parent.RemoveChild(ui)
	}
	return doc, nil
}
