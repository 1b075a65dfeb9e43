// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the memory VCS and block index to LLM clients via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/engram/internal/knowledgeservice"
	"github.com/starford/engram/internal/vcs"
)

// BlockFormatURI is the resource that serves BlockFormatContract.
const BlockFormatURI = "engram://block-format"

// Server wraps the MCP server with the engram tools.
type Server struct {
	mcp *server.MCPServer
	svc *knowledgeservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *knowledgeservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"engram",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("vcs_status",
		mcp.WithDescription("Show the current branch and which knowledge blocks are staged, new, modified or removed since the last commit."),
	), s.status)

	s.mcp.AddTool(mcp.NewTool("vcs_log",
		mcp.WithDescription("List commits newest first."),
		mcp.WithString("from", mcp.Description("Start ref: branch, hash prefix, HEAD or ref~N (default HEAD)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of commits (default 20)")),
		mcp.WithString("grep", mcp.Description("Keep commits whose message or session ids contain this text")),
	), s.log)

	s.mcp.AddTool(mcp.NewTool("vcs_show",
		mcp.WithDescription("Show one commit and the knowledge blocks it records."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Branch, hash prefix, HEAD or ref~N")),
		mcp.WithString("category", mcp.Description("Restrict to one category")),
	), s.show)

	s.mcp.AddTool(mcp.NewTool("vcs_diff",
		mcp.WithDescription("Block-level diff between two refs, or between a ref and the working tree."),
		mcp.WithString("from", mcp.Description("From ref (default HEAD); WORKING for the working tree")),
		mcp.WithString("to", mcp.Description("To ref (default working tree); WORKING for the working tree")),
		mcp.WithString("category", mcp.Description("Restrict to one category")),
	), s.diff)

	s.mcp.AddTool(mcp.NewTool("vcs_branches",
		mcp.WithDescription("List branches; the checked-out one is marked current."),
	), s.branches)

	s.mcp.AddTool(mcp.NewTool("search_blocks",
		mcp.WithDescription("Full-text search through the knowledge blocks of the working tree."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchBlocks)

	s.mcp.AddTool(mcp.NewTool("get_block",
		mcp.WithDescription("Read the full content of one knowledge block with its links and backlinks."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category, e.g. decisions")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id from the block header")),
	), s.getBlock)

	s.mcp.AddTool(mcp.NewTool("append_block",
		mcp.WithDescription("Append a new knowledge block to a category. "+
			"Content MUST follow the block format contract. Read it first via "+
			"the get_block_contract tool or the "+BlockFormatURI+" resource. "+
			"The block stays uncommitted until a commit records it."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category to append to")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body of the block (no header)")),
		mcp.WithString("session_id", mcp.Description("Session id; generated when omitted")),
		mcp.WithString("ttl", mcp.Description("Optional retention hint, e.g. 30d")),
	), s.appendBlock)

	s.mcp.AddTool(mcp.NewTool("get_block_contract",
		mcp.WithDescription("Returns the knowledge block format contract. "+
			"Call this before appending blocks to ensure correct structure."),
	), s.getBlockContract)

	s.mcp.AddResource(
		mcp.NewResource(BlockFormatURI, "Block Format Contract",
			mcp.WithResourceDescription("Format of category files and the session blocks inside them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBlockFormatResource,
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

func (s *Server) status(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) log(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commits, err := s.svc.Log(ctx, vcs.LogOptions{
		From:  req.GetString("from", ""),
		Limit: req.GetInt("limit", 20),
		Grep:  req.GetString("grep", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(commits) == 0 {
		return mcp.NewToolResultText("no commits"), nil
	}
	var b strings.Builder
	for _, c := range commits {
		fmt.Fprintf(&b, "%s %s %s (%d sessions) %s\n",
			c.ShortHash(), c.Timestamp.Format("2006-01-02 15:04:05"), c.Branch, len(c.SessionIDs), c.Message)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) show(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Show(ctx, ref, req.GetString("category", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) diff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Diff(ctx, req.GetString("from", ""), req.GetString("to", ""), req.GetString("category", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Empty() {
		return mcp.NewToolResultText(fmt.Sprintf("no differences between %s and %s", res.From, res.To)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s\n", res.From, res.To)
	for _, cat := range res.Categories {
		fmt.Fprintf(&b, "[%s]\n", cat.Category)
		for _, e := range cat.Entries {
			fmt.Fprintf(&b, "  %s %s (%s) %s\n", e.Kind.Marker(), e.SessionID, e.Timestamp, e.Preview)
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) branches(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	branches, err := s.svc.Branches(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lines := make([]string, 0, len(branches))
	for _, br := range branches {
		mark := "  "
		if br.Current {
			mark = "* "
		}
		hash := "(no commits)"
		if br.Hash != "" {
			hash = br.Hash[:min(8, len(br.Hash))]
		}
		lines = append(lines, mark+br.Name+" "+hash)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.Block(ctx, category, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) appendBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.AppendBlock(ctx, knowledgeservice.AppendRequest{
		Category:  category,
		SessionID: req.GetString("session_id", ""),
		Content:   content,
		TTL:       req.GetString("ttl", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("appended: %s/%s", b.Category, b.SessionID)), nil
}

func (s *Server) getBlockContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BlockFormatContract(s.svc.Categories())), nil
}

func (s *Server) readBlockFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      BlockFormatURI,
			MIMEType: "text/markdown",
			Text:     BlockFormatContract(s.svc.Categories()),
		},
	}, nil
}
