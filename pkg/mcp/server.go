package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/middleware"
)

// Server wraps the mcp-go MCPServer that exposes the query pipeline as tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server with tool capabilities. A panicking tool
// handler is turned into an error result.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns the stateless streamable HTTP transport with tool-call logging.
// The caller's mux decides the mount path.
func (s *Server) Handler() http.Handler {
	transport := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
	return middleware.MCPRequestLogger(s.logger)(transport)
}
