package navwatch

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatnav/kit"
)

var pageIDProp = map[string]any{"type": "string", "description": "Observed page ID (see chatnav_list_pages)"}

// RegisterMCP registers the chatnav tools on an MCP server.
func RegisterMCP(srv *mcp.Server, ep *Endpoints) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatnav_list_pages",
		Description: "List the observed chat tabs with their platform and message count.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}, ep.ListPages, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatnav_messages",
		Description: "Return the user's own messages in the current conversation of a tab, oldest first.",
		InputSchema: kit.InputSchema(map[string]any{"page_id": pageIDProp}, "page_id"),
	}, ep.Messages, kit.DecodeJSON[PageRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatnav_search",
		Description: "Case-insensitive substring search over a tab's messages. Returns matching indices.",
		InputSchema: kit.InputSchema(map[string]any{
			"page_id": pageIDProp,
			"query":   map[string]any{"type": "string", "description": "Search term; blank matches every message"},
		}, "page_id", "query"),
	}, ep.Search, kit.DecodeJSON[SearchRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatnav_activate",
		Description: "Scroll a message into view in the tab and highlight it briefly.",
		InputSchema: kit.InputSchema(map[string]any{
			"page_id": pageIDProp,
			"index":   map[string]any{"type": "integer", "description": "Message index from chatnav_messages"},
		}, "page_id", "index"),
	}, ep.Activate, kit.DecodeJSON[ActivateRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatnav_rescan",
		Description: "Re-extract a tab's messages now and return the new index.",
		InputSchema: kit.InputSchema(map[string]any{"page_id": pageIDProp}, "page_id"),
	}, ep.Rescan, kit.DecodeJSON[PageRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatnav_export",
		Description: "Export a tab's messages as a Markdown transcript.",
		InputSchema: kit.InputSchema(map[string]any{"page_id": pageIDProp}, "page_id"),
	}, ep.Export, kit.DecodeJSON[PageRequest]())
}
