package navwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/platform"
)

const claudeThread = `<!DOCTYPE html><html><body>
<nav><div data-is-model-response="false">sidebar chat title</div></nav>
<main id="thread">
<div data-is-model-response="false">First question here</div>
<div data-is-model-response="true">Answer one</div>
<div data-is-model-response="false"><p>Second question <strong>here</strong></p></div>
</main>
</body></html>`

func newNav(t *testing.T, src, pageURL string) *navigator.Navigator {
	t.Helper()
	tree, err := dom.ParseString(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	nav := navigator.New(context.Background(), navigator.Config{
		Tree:     tree,
		PageID:   "tab-1",
		Debounce: 20 * time.Millisecond,
		WarmUp:   time.Hour,
	})
	nav.Navigate(pageURL)
	return nav
}

// newRegistry holds an indexed claude tab and a dormant one.
func newRegistry(t *testing.T) *StaticRegistry {
	t.Helper()
	reg := NewStaticRegistry()
	t.Cleanup(reg.Close)

	chat := newNav(t, claudeThread, "https://claude.ai/chat/abc")
	if err := chat.ForceRescan(); err != nil {
		t.Fatal(err)
	}
	reg.Add("tab-1", chat)
	reg.Add("tab-0", newNav(t, claudeThread, "https://claude.ai/new"))
	return reg
}

func TestStaticRegistry_Pages(t *testing.T) {
	reg := newRegistry(t)
	pages := reg.Pages()
	if len(pages) != 2 {
		t.Fatalf("pages: got %d", len(pages))
	}
	if pages[0].ID != "tab-0" || pages[0].Active || pages[0].Messages != 0 {
		t.Errorf("dormant page: %+v", pages[0])
	}
	p := pages[1]
	if p.ID != "tab-1" || !p.Active || p.Messages != 2 || p.Platform != platform.Claude || p.Seq != 1 {
		t.Errorf("active page: %+v", p)
	}
	if _, ok := reg.Navigator("nope"); ok {
		t.Error("unknown page should not resolve")
	}
}

func TestExport(t *testing.T) {
	reg := newRegistry(t)
	nav, _ := reg.Navigator("tab-1")

	md, err := Export(nav)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(md, "# claude conversation\n") {
		t.Errorf("title: %q", md)
	}
	if !strings.Contains(md, "## 1. First question here") || !strings.Contains(md, "**here**") {
		t.Errorf("transcript: %q", md)
	}

	dormant, _ := reg.Navigator("tab-0")
	if _, err := Export(dormant); !errors.Is(err, navigator.ErrNoSession) {
		t.Errorf("dormant export: got %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	h := NewRouter(NewEndpoints(newRegistry(t), nil))

	if w := do(t, h, "GET", "/health"); w.Code != 200 {
		t.Fatalf("health: %d", w.Code)
	}

	w := do(t, h, "GET", "/pages")
	var pages []PageInfo
	if err := json.Unmarshal(w.Body.Bytes(), &pages); err != nil || len(pages) != 2 {
		t.Fatalf("pages: %v %s", err, w.Body)
	}

	w = do(t, h, "GET", "/pages/tab-1/messages")
	var msgs MessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 2 || msgs.Messages[1].Text != "Second question here" || msgs.Platform != platform.Claude {
		t.Errorf("messages: %+v", msgs)
	}

	w = do(t, h, "GET", "/pages/tab-1/search?q=SECOND")
	var found SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &found); err != nil {
		t.Fatal(err)
	}
	if len(found.Indices) != 1 || found.Indices[0] != 1 || found.Entries[0].Index != 1 {
		t.Errorf("search: %+v", found)
	}

	w = do(t, h, "POST", "/pages/tab-1/messages/0/activate")
	var act ActivateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &act); err != nil || !act.Activated {
		t.Errorf("activate: %v %s", err, w.Body)
	}
	w = do(t, h, "POST", "/pages/tab-1/messages/9/activate")
	if err := json.Unmarshal(w.Body.Bytes(), &act); err != nil || w.Code != 200 || act.Activated {
		t.Errorf("activate out of range: %d %s", w.Code, w.Body)
	}

	w = do(t, h, "POST", "/pages/tab-1/rescan")
	var snap navigator.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil || snap.Seq != 2 || len(snap.Entries) != 2 {
		t.Errorf("rescan: %v %s", err, w.Body)
	}

	w = do(t, h, "GET", "/pages/tab-1/export")
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("export content type: %q", ct)
	}
	if !strings.Contains(w.Body.String(), "## 2. Second question here") {
		t.Errorf("export body: %s", w.Body)
	}
}

func TestRouter_Errors(t *testing.T) {
	h := NewRouter(NewEndpoints(newRegistry(t), nil))
	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/pages/missing/messages", http.StatusNotFound},
		{"GET", "/pages/tab-0/messages", http.StatusConflict},
		{"POST", "/pages/tab-0/rescan", http.StatusConflict},
		{"GET", "/pages/tab-0/export", http.StatusConflict},
		{"POST", "/pages/tab-1/messages/first/activate", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := do(t, h, tt.method, tt.path)
		if w.Code != tt.want {
			t.Errorf("%s %s: got %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body)
		}
		if !bytes.Contains(w.Body.Bytes(), []byte(`"error"`)) {
			t.Errorf("%s %s: no error body", tt.method, tt.path)
		}
	}
}

func TestStatusOf(t *testing.T) {
	if got := statusOf(fmt.Errorf("wrapped: %w", navigator.ErrClosed)); got != http.StatusGone {
		t.Errorf("closed: got %d", got)
	}
	if got := statusOf(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("other: got %d", got)
	}
}

func TestRegisterMCP(t *testing.T) {
	impl := &mcp.Implementation{Name: "chatnav-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	RegisterMCP(srv, NewEndpoints(newRegistry(t), nil))

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	call := func(name string, args map[string]any) *mcp.CallToolResult {
		t.Helper()
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return res
	}
	text := func(res *mcp.CallToolResult) []byte {
		t.Helper()
		if res.IsError {
			t.Fatalf("tool error: %v", res.Content)
		}
		return []byte(res.Content[0].(*mcp.TextContent).Text)
	}

	var pages []PageInfo
	if err := json.Unmarshal(text(call("chatnav_list_pages", map[string]any{})), &pages); err != nil || len(pages) != 2 {
		t.Fatalf("list_pages: %v %+v", err, pages)
	}

	var found SearchResponse
	if err := json.Unmarshal(text(call("chatnav_search", map[string]any{"page_id": "tab-1", "query": "first"})), &found); err != nil {
		t.Fatal(err)
	}
	if len(found.Indices) != 1 || found.Indices[0] != 0 {
		t.Errorf("search: %+v", found)
	}

	var act ActivateResponse
	if err := json.Unmarshal(text(call("chatnav_activate", map[string]any{"page_id": "tab-1", "index": 1})), &act); err != nil || !act.Activated {
		t.Errorf("activate: %v %+v", err, act)
	}

	var exp ExportResponse
	if err := json.Unmarshal(text(call("chatnav_export", map[string]any{"page_id": "tab-1"})), &exp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(exp.Markdown, "First question here") {
		t.Errorf("export: %q", exp.Markdown)
	}

	if res := call("chatnav_messages", map[string]any{"page_id": "tab-0"}); !res.IsError {
		t.Error("dormant page should be a tool error")
	}
	if res := call("chatnav_rescan", map[string]any{"page_id": "missing"}); !res.IsError {
		t.Error("unknown page should be a tool error")
	}
}

func TestSinksFromConfig(t *testing.T) {
	sinks, err := SinksFromConfig([]SinkConfig{{Type: "stdout"}, {Type: "webhook", URL: "http://127.0.0.1:1/x", Retries: 1}}, nil)
	if err != nil || len(sinks) != 2 {
		t.Fatalf("got %d sinks, %v", len(sinks), err)
	}
	if _, err := SinksFromConfig([]SinkConfig{{Type: "kafka"}}, nil); err == nil {
		t.Error("unknown sink type should fail")
	}
}

func TestWatcher_ReloadBeforeStart(t *testing.T) {
	w := New(&Config{}, nil)
	defer w.Stop()
	if err := w.ReloadPages([]PageConfig{{ID: "a", URL: "https://claude.ai/chat/x"}}); err == nil {
		t.Error("reload before start should fail")
	}
	if len(w.Pages()) != 0 {
		t.Error("no page should be observed")
	}
	if w.UnobservePage("a") {
		t.Error("unobserve of an unknown page should report false")
	}
}
