package navwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/chatnav/idgen"
	"github.com/hazyhaar/chatnav/kit"
	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/platform"
)

var (
	// ErrUnknownPage is returned for a page ID the registry does not hold.
	ErrUnknownPage = errors.New("navwatch: unknown page")
	// ErrBadRequest wraps malformed requests.
	ErrBadRequest = errors.New("navwatch: bad request")
)

// PageRequest addresses one page.
type PageRequest struct {
	PageID string `json:"page_id"`
}

// SearchRequest filters the messages of a page.
type SearchRequest struct {
	PageID string `json:"page_id"`
	Query  string `json:"query"`
}

// ActivateRequest highlights one message.
type ActivateRequest struct {
	PageID string `json:"page_id"`
	Index  int    `json:"index"`
}

// MessageView is one stored message with its full text.
type MessageView struct {
	Index          int    `json:"index"`
	Text           string `json:"text"`
	Preview        string `json:"preview"`
	HasAttachment  bool   `json:"has_attachment"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// MessagesResponse lists the messages of a page.
type MessagesResponse struct {
	PageID    string        `json:"page_id"`
	SessionID string        `json:"session_id"`
	URL       string        `json:"url"`
	Platform  platform.ID   `json:"platform"`
	Seq       uint64        `json:"seq"`
	Messages  []MessageView `json:"messages"`
}

// SearchResponse holds the matching indices in message order.
type SearchResponse struct {
	PageID  string            `json:"page_id"`
	Query   string            `json:"query"`
	Indices []int             `json:"indices"`
	Entries []navigator.Entry `json:"entries"`
}

// ActivateResponse reports whether the message was highlighted.
type ActivateResponse struct {
	PageID    string `json:"page_id"`
	Index     int    `json:"index"`
	Activated bool   `json:"activated"`
}

// ExportResponse carries a Markdown transcript.
type ExportResponse struct {
	PageID   string `json:"page_id"`
	Markdown string `json:"markdown"`
}

// Endpoints are the operations shared by the HTTP API and the MCP tools.
type Endpoints struct {
	ListPages kit.Endpoint
	Messages  kit.Endpoint
	Search    kit.Endpoint
	Activate  kit.Endpoint
	Rescan    kit.Endpoint
	Export    kit.Endpoint
}

// NewEndpoints builds the endpoints over reg, each stamped with a request
// ID and logged.
func NewEndpoints(reg Registry, logger *slog.Logger) *Endpoints {
	if logger == nil {
		logger = slog.Default()
	}
	ids := idgen.Prefixed("req_", idgen.Default)
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.WithRequestIDs(ids), kit.WithLogging(logger, name))(ep)
	}
	return &Endpoints{
		ListPages: wrap("list_pages", listPages(reg)),
		Messages:  wrap("messages", messages(reg)),
		Search:    wrap("search", search(reg)),
		Activate:  wrap("activate", activate(reg)),
		Rescan:    wrap("rescan", rescan(reg)),
		Export:    wrap("export", export(reg)),
	}
}

func lookup(reg Registry, id string) (*navigator.Navigator, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: page_id is required", ErrBadRequest)
	}
	nav, ok := reg.Navigator(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	return nav, nil
}

func listPages(reg Registry) kit.Endpoint {
	return func(context.Context, any) (any, error) {
		return reg.Pages(), nil
	}
}

func messages(reg Registry) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		nav, err := lookup(reg, r.PageID)
		if err != nil {
			return nil, err
		}
		msgs, err := nav.Messages()
		if err != nil {
			return nil, err
		}
		snap := nav.Snapshot()
		out := MessagesResponse{
			PageID:    r.PageID,
			SessionID: snap.SessionID,
			URL:       snap.URL,
			Platform:  snap.Platform,
			Seq:       snap.Seq,
			Messages:  make([]MessageView, len(msgs)),
		}
		for i, m := range msgs {
			out.Messages[i] = MessageView{
				Index:          i,
				Text:           m.Text,
				Preview:        m.Preview,
				HasAttachment:  m.HasAttachment,
				AttachmentName: m.AttachmentName,
			}
		}
		return out, nil
	}
}

func search(reg Registry) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r := req.(*SearchRequest)
		nav, err := lookup(reg, r.PageID)
		if err != nil {
			return nil, err
		}
		idx, err := nav.Search(r.Query)
		if err != nil {
			return nil, err
		}
		entries := nav.Snapshot().Entries
		out := SearchResponse{
			PageID:  r.PageID,
			Query:   r.Query,
			Indices: idx,
			Entries: make([]navigator.Entry, 0, len(idx)),
		}
		for _, i := range idx {
			if i < len(entries) {
				out.Entries = append(out.Entries, entries[i])
			}
		}
		return out, nil
	}
}

func activate(reg Registry) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r := req.(*ActivateRequest)
		nav, err := lookup(reg, r.PageID)
		if err != nil {
			return nil, err
		}
		ok, err := nav.Activate(r.Index)
		if err != nil {
			return nil, err
		}
		return ActivateResponse{PageID: r.PageID, Index: r.Index, Activated: ok}, nil
	}
}

func rescan(reg Registry) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		nav, err := lookup(reg, r.PageID)
		if err != nil {
			return nil, err
		}
		if err := nav.ForceRescan(); err != nil {
			return nil, err
		}
		return nav.Snapshot(), nil
	}
}

func export(reg Registry) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r := req.(*PageRequest)
		nav, err := lookup(reg, r.PageID)
		if err != nil {
			return nil, err
		}
		md, err := Export(nav)
		if err != nil {
			return nil, err
		}
		return ExportResponse{PageID: r.PageID, Markdown: md}, nil
	}
}
