// Package llm provides the text-completion oracle used for SQL generation and answer synthesis.
package llm

import (
	"context"
)

// Role tags a message in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn in a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions are the sampling knobs for a single completion.
// MaxTokens of zero uses the client's configured default.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// Client is the oracle contract: an ordered list of messages in, one completion out.
// Implementations must honor ctx deadlines.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// SystemMessage builds a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Ensure clients implement Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*BreakerClient)(nil)
	_ Client = (*MockClient)(nil)
)
