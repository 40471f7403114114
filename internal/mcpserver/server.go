// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes linkmend tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/repair"
)

const rulesURI = "linkmend://link-rules"

// Server wraps the MCP server with linkmend tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all linkmend tools registered.
func New(svc *linkservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"linkmend",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the indexed Markdown and notebook documents."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List the links of a document and the documents linking to it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path, absolute or relative to the workspace root")),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("find_broken_links",
		mcp.WithDescription("List every file link whose target does not exist. "+
			"Set rescan to sync the index with the workspace first."),
		mcp.WithBoolean("rescan", mcp.Description("Sync the index before probing")),
	), s.findBrokenLinks)

	s.mcp.AddTool(mcp.NewTool("find_candidates",
		mcp.WithDescription("Search the workspace for files that could replace a broken target. "+
			"Exact candidates keep the parent directory name, loose ones only the file name."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Broken target path")),
	), s.findCandidates)

	s.mcp.AddTool(mcp.NewTool("repair_link",
		mcp.WithDescription("Rewrite one broken link in one document. Without a replacement the "+
			"single best candidate is used; the call fails if there is none."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document holding the link")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Broken target path")),
		mcp.WithString("replacement", mcp.Description("Replacement path (optional)")),
	), s.repairLink)

	s.mcp.AddTool(mcp.NewTool("auto_repair",
		mcp.WithDescription("Repair every broken link that has a single best candidate. "+
			"Call with dry_run first to review the plan."),
		mcp.WithBoolean("dry_run", mcp.Description("Report the planned repairs without writing")),
	), s.autoRepair)

	s.mcp.AddTool(mcp.NewTool("move_document",
		mcp.WithDescription("Move a document and update its own relative links and every link pointing at it."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current document path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New document path")),
	), s.moveDocument)

	s.mcp.AddTool(mcp.NewTool("get_link_rules",
		mcp.WithDescription("Returns the rules linkmend uses to classify, resolve and repair links."),
	), s.getLinkRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Link Rules",
			mcp.WithResourceDescription("How links are classified, resolved and repaired."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Documents(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Links(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	backlinks, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"links": links, "backlinks": backlinks})
}

func (s *Server) findBrokenLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetBool("rescan", false) {
		report, err := s.svc.Scan(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(report.Broken) == 0 {
			return mcp.NewToolResultText("no broken links"), nil
		}
		return jsonResult(report.Broken)
	}
	broken, err := s.svc.Broken(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(broken) == 0 {
		return mcp.NewToolResultText("no broken links"), nil
	}
	return jsonResult(broken)
}

func (s *Server) findCandidates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	set, err := s.svc.Candidates(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	selected, _ := repair.Select(set)
	return jsonResult(map[string]any{
		"broken":   set.Broken,
		"exact":    set.Exact,
		"loose":    set.Loose,
		"selected": selected,
	})
}

func (s *Server) repairLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.Repair(ctx, linkservice.RepairRequest{
		Document:    document,
		Target:      target,
		Replacement: req.GetString("replacement", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("repaired: %s -> %s in %s", out.Target, out.Replacement, out.Document)), nil
}

func (s *Server) autoRepair(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.AutoRepair(ctx, req.GetBool("dry_run", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) moveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Move(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) getLinkRules(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LinkRules), nil
}

func (s *Server) readLinkRulesResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     LinkRules,
		},
	}, nil
}
