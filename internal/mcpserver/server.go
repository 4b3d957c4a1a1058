// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes zest tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/zest/internal/apperr"
	"github.com/starford/zest/internal/noteservice"
)

const defaultLimit = 20

// Server wraps the MCP server with zest tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all zest tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"zest",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes with a boolean field query (e.g. `tag:go NOT tag:draft`). "+
			"Read the zest://query-syntax resource for the full grammar."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the raw Markdown of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the note, as returned by search_notes")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("update",
		mcp.WithDescription("Incrementally bring the index up to date with the note files on disk."),
	), s.update)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddResource(
		mcp.NewResource("zest://query-syntax", "Query Syntax",
			mcp.WithResourceDescription("Grammar and ranking of the search_notes query language."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQuerySyntax,
	)

	return s
}

// Serve runs the MCP stdio protocol over in and out until in is exhausted or
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultLimit)
	hits, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.Read(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) update(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.Update(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	failures := make([]string, len(sum.Failures))
	for i, f := range sum.Failures {
		failures[i] = f.Error()
	}
	out, _ := json.MarshalIndent(struct {
		Indexed   int      `json:"indexed"`
		Updated   int      `json:"updated"`
		Removed   int      `json:"removed"`
		Unchanged int      `json:"unchanged"`
		Failures  []string `json:"failures,omitempty"`
	}{sum.Indexed, sum.Updated, sum.Removed, sum.Unchanged, failures}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) readQuerySyntax(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "zest://query-syntax",
			MIMEType: "text/markdown",
			Text:     QuerySyntax,
		},
	}, nil
}
