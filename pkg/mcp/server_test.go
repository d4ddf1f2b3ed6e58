package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	require.NotNil(t, s)
	assert.NotNil(t, s.MCP())
	assert.Same(t, s.mcp, s.MCP())
}

func TestServer_ToolCall(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	called := false
	s.MCP().AddTool(mcp.NewTool("echo", mcp.WithDescription("Echoes")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("echoed"), nil
	})
	assert.False(t, called, "handler must not run at registration")

	result := s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`))
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	assert.True(t, called)
	assert.Contains(t, string(raw), "echoed")
}

func TestServer_Handler(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())
	s.MCP().AddTool(mcp.NewTool("echo", mcp.WithDescription("Echoes")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("echoed"), nil
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"echo"`)
}
