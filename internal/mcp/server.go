// Package mcp exposes document question answering as MCP tools.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Ranjithnathk/ClauseWise/internal/rag"
)

// ServerName is the implementation name reported to clients.
const ServerName = "clausewise"

// Config configures the MCP server.
type Config struct {
	// Pipeline answers questions and lists documents.
	Pipeline *rag.Pipeline

	// User is the identity for sessions that carry no HTTP header, such as stdio.
	User string

	// IdentityHeader names the header holding the user on HTTP sessions.
	IdentityHeader string

	// Version is reported to clients.
	Version string
}

// Server wraps an MCP server with the clausewise tools registered.
type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates the MCP server and registers its tools.
func NewServer(c Config) (*Server, error) {
	if c.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if c.Version == "" {
		c.Version = "dev"
	}

	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: c.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        askToolName,
		Description: askDescription,
	}, s.handleAsk)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, s.handleSearch)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listToolName,
		Description: listDescription,
	}, s.handleList)

	s.mcpServer = mcpServer
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves MCP over stdin and stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting", "transport", "stdio", "user", s.config.User)
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Server returns the underlying MCP server.
func (s *Server) Server() *mcp.Server {
	return s.mcpServer
}

// user returns the identity for a tool call: the HTTP header when present,
// otherwise the configured user.
func (s *Server) user(extra *mcp.RequestExtra) string {
	if extra != nil && extra.Header != nil && s.config.IdentityHeader != "" {
		if u := strings.TrimSpace(extra.Header.Get(s.config.IdentityHeader)); u != "" {
			return u
		}
	}
	return s.config.User
}

// errorResult reports a tool failure inside the result so the client model sees it.
func errorResult(msg string) *mcp.CallToolResult {
	log.Debug("MCP tool failed", "error", msg)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
