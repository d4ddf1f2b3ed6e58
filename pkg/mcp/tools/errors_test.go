package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTextContent extracts the text string from the first text content item
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return text.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_parameters", "question must not be empty")

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error)
	assert.Equal(t, "invalid_parameters", errResp.Code)
	assert.Equal(t, "question must not be empty", errResp.Message)
}

func TestNewErrorResult_EscapesMessage(t *testing.T) {
	result := NewErrorResult("invalid_parameters", `tenant "a\b" not found`)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.Equal(t, `tenant "a\b" not found`, errResp.Message)
}
