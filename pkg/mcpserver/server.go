// Package mcpserver exposes the cached screen context over the Model
// Context Protocol so AI assistants can pull it as a tool or resource.
// The surface is strictly read-only: handlers never start, stop or
// otherwise touch recording state.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/inframehq/inframe/pkg/cache"
	"github.com/inframehq/inframe/pkg/logging"
)

const (
	serverName    = "screen-context"
	serverVersion = "0.1.0"

	// ResourceURI is where the context snapshot is exposed as an MCP
	// resource.
	ResourceURI = "context://inframe"

	// NoContextMessage is served when the cache file is missing or empty.
	NoContextMessage = "No screen context available. Run 'inframe record' to capture some context."

	sessionMarkerPrefix = "NEW RECORDING SESSION"
)

// Server wraps an MCP server around a context cache store.
type Server struct {
	store  cache.Store
	logger *logging.Logger
	mcp    *server.MCPServer
}

// New builds the MCP server with its two tools and the context resource
// registered.
func New(store cache.Store, logger *logging.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
	}

	s.mcp = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(
		mcp.NewTool("get_latest_screen_context",
			mcp.WithDescription("Get the latest screen recording context and transcription"),
		),
		s.handleGetContext,
	)
	s.mcp.AddTool(
		mcp.NewTool("check_screen_context_status",
			mcp.WithDescription("Check if screen context is available and show basic info"),
		),
		s.handleStatus,
	)
	s.mcp.AddResource(
		mcp.NewResource(ResourceURI, "Screen context",
			mcp.WithResourceDescription("Get the latest screen context from cache"),
			mcp.WithMIMEType("text/plain"),
		),
		s.handleResource,
	)

	return s
}

// ServeStdio serves MCP over stdin/stdout. Blocks until the client
// disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Infof("mcp server %q serving on stdio (cache %s)", serverName, s.store.Path())
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves MCP over streamable HTTP on addr. Blocks until the
// listener fails or is shut down.
func (s *Server) ServeHTTP(addr string) error {
	s.logger.Infof("mcp server %q serving on %s (cache %s)", serverName, addr, s.store.Path())
	return server.NewStreamableHTTPServer(s.mcp).Start(addr)
}

func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.snapshot()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := s.store.Read()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(StatusLine(content)), nil
}

func (s *Server) handleResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	text, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ResourceURI,
			MIMEType: "text/plain",
			Text:     text,
		},
	}, nil
}

// snapshot reads the cache, substituting the sentinel for a missing or
// empty file.
func (s *Server) snapshot() (string, error) {
	content, err := s.store.Read()
	if err != nil {
		return "", err
	}
	if content == "" {
		return NoContextMessage, nil
	}
	return content, nil
}

// StatusLine summarizes a snapshot: availability, the most recent session
// marker, and the content length in characters.
func StatusLine(content string) string {
	if content == "" {
		return NoContextMessage
	}

	length := utf8.RuneCountInString(content)
	marker := LatestSessionMarker(content)
	if marker == "" {
		return fmt.Sprintf("Screen context file exists but no sessions found. Content length: %d characters", length)
	}
	return fmt.Sprintf("Screen context is available. %s\nTotal content length: %d characters", marker, length)
}

// LatestSessionMarker returns the last session-marker line in content,
// or "" when no session has been recorded into it.
func LatestSessionMarker(content string) string {
	var marker string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, sessionMarkerPrefix) {
			marker = line
		}
	}
	return marker
}
