package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// navTimeout bounds the initial navigation of a new tab.
const navTimeout = 30 * time.Second

// Tab is one chat page driven over CDP.
type Tab struct {
	Page   *rod.Page
	PageID string

	// owned is false for tabs adopted from a remote browser; Close leaves
	// those open.
	owned bool
}

// OpenTab returns a tab showing pageURL. On an attached browser a page
// already showing the same conversation is adopted as is; otherwise a new
// stealth tab is created and navigated.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	log := mgr.cfg.Logger

	if mgr.cfg.RemoteURL != "" {
		if p := findPage(b, pageURL); p != nil {
			log.Info("browser: adopted open tab", "page", pageID, "url", pageURL)
			return &Tab{Page: p, PageID: pageID}, nil
		}
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Mode == ModeHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := blockResources(page, mgr.cfg.ResourceBlocking); err != nil {
			log.Warn("browser: resource blocking failed", "page", pageID, "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageID: pageID, owned: true}, nil
}

// findPage returns the first open page whose URL starts with pageURL
// without its query and fragment.
func findPage(b *rod.Browser, pageURL string) *rod.Page {
	pages, err := b.Pages()
	if err != nil {
		return nil
	}
	want := stripQuery(pageURL)
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, want) {
			return p
		}
	}
	return nil
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// OuterHTML serialises the whole document.
func (t *Tab) OuterHTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: outer html: %w", err)
	}
	return res.Value.Str(), nil
}

// Location returns the tab's current URL.
func (t *Tab) Location(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return res.Value.Str(), nil
}

// Eval runs js, a function expression, with args.
func (t *Tab) Eval(ctx context.Context, js string, args ...any) error {
	if _, err := t.Page.Context(ctx).Eval(js, args...); err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	return nil
}

// Close closes tabs this process opened.
func (t *Tab) Close() error {
	if t.Page == nil || !t.owned {
		return nil
	}
	return t.Page.Close()
}
