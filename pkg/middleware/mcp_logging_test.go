package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, logger *zap.Logger, reqBody, respBody string) *httptest.ResponseRecorder {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(respBody))
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	rec := httptest.NewRecorder()
	MCPRequestLogger(logger)(handler).ServeHTTP(rec, req)
	return rec
}

const askCall = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_question","arguments":{"tenant_id":"t1","workspace_id":"w1","question":"Who are my customers?"}}}`

func TestMCPRequestLogger(t *testing.T) {
	t.Run("logs successful tool call", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		rec := serveMCP(t, zap.New(core), askCall,
			`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 2, logs.Len())

		request := logs.All()[0]
		assert.Equal(t, "MCP request", request.Message)
		assert.Equal(t, "tools/call", request.ContextMap()["method"])
		assert.Equal(t, "ask_question", request.ContextMap()["tool"])

		response := logs.All()[1]
		assert.Equal(t, "MCP response success", response.Message)
		assert.Equal(t, "ask_question", response.ContextMap()["tool"])
	})

	t.Run("logs JSON-RPC error", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		serveMCP(t, zap.New(core), askCall,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"unknown tool"}}`)

		require.Equal(t, 2, logs.Len())
		response := logs.All()[1]
		assert.Equal(t, "MCP response error", response.Message)
		assert.Equal(t, int64(-32602), response.ContextMap()["error_code"])
		assert.Equal(t, "unknown tool", response.ContextMap()["error_message"])
	})

	t.Run("logs tool error result", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		serveMCP(t, zap.New(core), askCall,
			`{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"query failed after 3 attempts"}]}}`)

		require.Equal(t, 2, logs.Len())
		response := logs.All()[1]
		assert.Equal(t, "MCP tool error", response.Message)
		assert.Equal(t, "query failed after 3 attempts", response.ContextMap()["detail"])
	})

	t.Run("passes body through unchanged", func(t *testing.T) {
		var received string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(bytes.Buffer)
			_, _ = buf.ReadFrom(r.Body)
			received = buf.String()
		})
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(askCall))
		MCPRequestLogger(zap.NewNop())(handler).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, askCall, received)
	})

	t.Run("passes through with nil logger", func(t *testing.T) {
		called := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(askCall))
		MCPRequestLogger(nil)(handler).ServeHTTP(httptest.NewRecorder(), req)

		assert.True(t, called)
	})

	t.Run("tolerates malformed JSON", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		rec := serveMCP(t, zap.New(core), `{not json`, `not json either`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.GreaterOrEqual(t, logs.Len(), 1)
	})
}

func TestSanitizeArguments(t *testing.T) {
	t.Run("redacts sensitive keywords case-insensitively", func(t *testing.T) {
		got := sanitizeArguments(map[string]any{
			"API_KEY":     "abc",
			"db_password": "hunter2",
			"question":    "How many orders?",
		})

		assert.Equal(t, "[REDACTED]", got["API_KEY"])
		assert.Equal(t, "[REDACTED]", got["db_password"])
		assert.Equal(t, "How many orders?", got["question"])
	})

	t.Run("truncates long questions", func(t *testing.T) {
		got := sanitizeArguments(map[string]any{"question": strings.Repeat("q", 500)})

		s, ok := got["question"].(string)
		require.True(t, ok)
		assert.Len(t, s, maxLoggedArgument+3)
		assert.True(t, strings.HasSuffix(s, "..."))
	})

	t.Run("preserves non-string values", func(t *testing.T) {
		got := sanitizeArguments(map[string]any{"limit": float64(10), "verbose": true})

		assert.Equal(t, float64(10), got["limit"])
		assert.Equal(t, true, got["verbose"])
	})

	t.Run("nil arguments", func(t *testing.T) {
		assert.Nil(t, sanitizeArguments(nil))
	})
}
