package studio

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tubemaster/kit"
)

// Version is reported to MCP clients.
const Version = "1.2.0"

// NewMCPServer returns an MCP server carrying every studio tool.
func (e *Engine) NewMCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "tubemaster", Version: Version}, nil)
	e.RegisterMCP(srv)
	return srv
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// RegisterMCP registers the studio tools on srv.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	eps := e.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_status",
		Description: "Report the session, settings and, when a studio tab is attached, the located fields and panels.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.status, kit.DecodeArgs[emptyReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_rescan",
		Description: "Locate the title and description fields again and re-anchor the panels.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.rescan, kit.DecodeArgs[emptyReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_suggest_titles",
		Description: "Generate title suggestions and show them under the title field. Without text the current title is used.",
		InputSchema: inputSchema(map[string]any{
			"text": str("Title or topic to base the suggestions on"),
		}, nil),
	}, eps.suggestTitles, kit.DecodeArgs[suggestReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_populate_title",
		Description: "Write a title into the studio title field.",
		InputSchema: inputSchema(map[string]any{
			"text": str("Title to write"),
		}, []string{"text"}),
	}, eps.populateTitle, kit.DecodeArgs[populateReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_generate_description",
		Description: "Generate a description variant. With keywords a new variant list starts; without, a variant is added to the current list.",
		InputSchema: inputSchema(map[string]any{
			"keywords": str("Comma separated keywords, at most 100 characters"),
		}, nil),
	}, eps.generateDescription, kit.DecodeArgs[describeReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_description_history",
		Description: "Move through the generated description variants.",
		InputSchema: inputSchema(map[string]any{
			"direction": map[string]any{"type": "string", "enum": []string{"prev", "next", "current"}},
		}, nil),
	}, eps.history, kit.DecodeArgs[historyReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_insert_description",
		Description: "Prepend the current description variant to the studio description field.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.insert, kit.DecodeArgs[emptyReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_read_description",
		Description: "Read the studio description field, optionally converted to Markdown.",
		InputSchema: inputSchema(map[string]any{
			"markdown": map[string]any{"type": "boolean"},
		}, nil),
	}, eps.read, kit.DecodeArgs[readReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_generate_thumbnails",
		Description: "Generate thumbnails and show them in the thumbnail builder. Without a description the studio fields are used.",
		InputSchema: inputSchema(map[string]any{
			"description": str("What the video is about"),
		}, nil),
	}, eps.generateThumbnails, kit.DecodeArgs[thumbnailsReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_sign_in",
		Description: "Store a TubeMaster account token.",
		InputSchema: inputSchema(map[string]any{
			"token": str("Account token issued by TubeMaster"),
		}, []string{"token"}),
	}, eps.storeToken, kit.DecodeArgs[tokenReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "studio_sign_out",
		Description: "Clear the stored TubeMaster session and remove the panels.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.signOut, kit.DecodeArgs[emptyReq])
}
