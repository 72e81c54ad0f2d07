package observer

import (
	"context"
	_ "embed"
	"html/template"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/navwatch/mutation"
)

//go:embed overlay.css
var overlayCSS string

var panelTmpl = template.Must(template.New("panel").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<div class="top-bar"><input class="search-input" type="text" placeholder="搜索消息..."><button class="refresh-btn" type="button" title="刷新列表">↻</button></div>
<div class="message-list" data-platform="{{.Platform}}">
{{- range .Entries}}
<div class="message-item{{if .HasAttachment}} has-file{{end}}" data-index="{{.Index}}"><div class="message-number">{{inc .Index}}</div><div class="message-text">{{.Preview}}</div>{{with .AttachmentName}}<span class="message-file">{{.}}</span>{{end}}</div>
{{- else}}
<div class="message-empty">暂无消息</div>
{{- end}}
</div>`))

// overlayPolicy admits only the markup the panel template produces.
var overlayPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "span", "button", "input")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-z -]+$`)).Globally()
	p.AllowAttrs("data-index").Matching(bluemonday.Integer).OnElements("div")
	p.AllowAttrs("data-platform").Matching(regexp.MustCompile(`^[a-z]+$`)).OnElements("div")
	p.AllowAttrs("type", "placeholder").OnElements("input")
	p.AllowAttrs("type", "title").OnElements("button")
	return p
}()

// RenderPanel renders the sidebar body for snap.
func RenderPanel(snap navigator.Snapshot) (string, error) {
	var b strings.Builder
	if err := panelTmpl.Execute(&b, snap); err != nil {
		return "", err
	}
	return overlayPolicy.Sanitize(b.String()), nil
}

// mountJS keeps the sidebar collapsed behind a floating tab; hovering the
// tab opens it and leaving the sidebar closes it after a short delay.
const mountJS = `(id, body, css) => {
  if (!document.getElementById('chat-navigator-dynamic-style')) {
    const style = document.createElement('style');
    style.id = 'chat-navigator-dynamic-style';
    style.textContent = css;
    document.head.appendChild(style);
  }
  let root = document.getElementById(id);
  if (!root) {
    root = document.createElement('div');
    root.id = id;
    root.className = 'collapsed';
    root.innerHTML = '<div class="chat-floating-tab"></div><div class="chat-nav-panel"></div>';
    document.body.appendChild(root);
    const ui = (msg) => {
      if (typeof window.__chatnav_ui === 'function') window.__chatnav_ui(JSON.stringify(msg));
    };
    let hide;
    root.addEventListener('mouseenter', () => {
      clearTimeout(hide);
      root.classList.remove('collapsed');
    });
    root.addEventListener('mouseleave', () => {
      hide = setTimeout(() => root.classList.add('collapsed'), 200);
    });
    root.addEventListener('click', (e) => {
      if (e.target.closest('.refresh-btn')) return ui({action: 'rescan'});
      const item = e.target.closest('.message-item');
      if (item) ui({action: 'activate', index: Number(item.dataset.index)});
    });
    root.addEventListener('input', (e) => {
      if (e.target.classList.contains('search-input')) ui({action: 'search', term: e.target.value});
    });
  }
  const panel = root.querySelector('.chat-nav-panel');
  const prev = panel.querySelector('.search-input');
  const term = prev ? prev.value : '';
  const focused = prev && document.activeElement === prev;
  panel.innerHTML = body;
  const list = panel.querySelector('.message-list');
  if (list) root.dataset.platform = list.dataset.platform;
  const input = panel.querySelector('.search-input');
  if (input) {
    input.value = term;
    if (focused) input.focus();
  }
}`

const filterJS = `(id, visible) => {
  const root = document.getElementById(id);
  if (!root) return;
  const keep = visible ? new Set(visible) : null;
  for (const item of root.querySelectorAll('.message-item')) {
    item.hidden = keep !== null && !keep.has(Number(item.dataset.index));
  }
}`

const unmountJS = `(id) => {
  const root = document.getElementById(id);
  if (root) root.remove();
}`

// OverlayConfig configures an Overlay.
type OverlayConfig struct {
	Page      Page
	Navigator *navigator.Navigator
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Overlay draws the message sidebar into the live page and turns clicks in
// it back into Navigator calls.
type Overlay struct {
	cfg    OverlayConfig
	logger *slog.Logger
	snaps  chan navigator.Snapshot
	done   chan struct{}

	mu   sync.Mutex
	term string

	renders atomic.Uint64
}

// NewOverlay creates an Overlay. Start begins drawing.
func NewOverlay(cfg OverlayConfig) *Overlay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Overlay{
		cfg:    cfg,
		logger: cfg.Logger,
		snaps:  make(chan navigator.Snapshot, 1),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the navigator and draws until ctx is cancelled; the
// sidebar is removed from the page on the way out.
func (ov *Overlay) Start(ctx context.Context) {
	cancel := ov.cfg.Navigator.OnStoreChanged(ov.Push)
	ov.Push(ov.cfg.Navigator.Snapshot())

	go func() {
		defer close(ov.done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				ov.eval(unmountJS, navigator.UIRootID)
				return
			case snap := <-ov.snaps:
				ov.render(snap)
			}
		}
	}()
}

// Done is closed once the overlay has stopped.
func (ov *Overlay) Done() <-chan struct{} { return ov.done }

// Renders counts successful redraws.
func (ov *Overlay) Renders() uint64 { return ov.renders.Load() }

// Push queues snap for drawing. Only the latest pending snapshot is kept,
// so it never blocks the session that publishes it.
func (ov *Overlay) Push(snap navigator.Snapshot) {
	for {
		select {
		case ov.snaps <- snap:
			return
		default:
		}
		select {
		case <-ov.snaps:
		default:
		}
	}
}

// Handle applies a sidebar action.
func (ov *Overlay) Handle(a mutation.Action) {
	nav := ov.cfg.Navigator
	switch a.Action {
	case "activate":
		ok, err := nav.Activate(a.Index)
		if err != nil || !ok {
			ov.logger.Debug("observer: activate from sidebar", "index", a.Index, "ok", ok, "error", err)
		}
	case "rescan":
		if err := nav.ForceRescan(); err != nil {
			ov.logger.Debug("observer: rescan from sidebar", "error", err)
		}
	case "search":
		ov.mu.Lock()
		ov.term = a.Term
		ov.mu.Unlock()
		ov.applyFilter()
	default:
		ov.logger.Warn("observer: unknown sidebar action", "action", a.Action)
	}
}

func (ov *Overlay) render(snap navigator.Snapshot) {
	body, err := RenderPanel(snap)
	if err != nil {
		ov.logger.Error("observer: render sidebar", "error", err)
		return
	}
	if !ov.eval(mountJS, navigator.UIRootID, body, overlayCSS) {
		return
	}
	ov.renders.Add(1)
	ov.applyFilter()
}

// applyFilter hides the items that do not match the current search term.
func (ov *Overlay) applyFilter() {
	ov.mu.Lock()
	term := ov.term
	ov.mu.Unlock()

	var visible []int
	if strings.TrimSpace(term) != "" {
		idx, err := ov.cfg.Navigator.Search(term)
		if err != nil {
			idx = []int{}
		}
		visible = idx
	}
	ov.eval(filterJS, navigator.UIRootID, visible)
}

func (ov *Overlay) eval(js string, args ...any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ov.cfg.Timeout)
	defer cancel()
	if err := ov.cfg.Page.Eval(ctx, js, args...); err != nil {
		ov.logger.Warn("observer: sidebar eval", "error", err)
		return false
	}
	return true
}
