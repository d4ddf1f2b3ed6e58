package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newChatServer returns an OpenAI-compatible endpoint that records request bodies.
func newChatServer(t *testing.T) (*httptest.Server, func() []map[string]any) {
	t.Helper()
	var mu sync.Mutex
	var bodies []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "SELECT 1"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), bodies...)
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv, bodies := newChatServer(t)
	client, err := NewOpenAIClient(&Config{Endpoint: srv.URL + "/", Model: "gpt-4o", MaxTokens: 256}, zap.NewNop())
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), []Message{SystemMessage("sys"), UserMessage("q")}, CompletionOptions{Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)

	sent := bodies()
	require.Len(t, sent, 1)
	assert.Equal(t, "gpt-4o", sent[0]["model"])
	assert.InDelta(t, 0.3, sent[0]["temperature"], 1e-6)
	assert.Equal(t, float64(256), sent[0]["max_tokens"])
	assert.Len(t, sent[0]["messages"], 2)
}

func TestOpenAIClient_ZeroTemperatureIsSent(t *testing.T) {
	srv, bodies := newChatServer(t)
	client, err := NewOpenAIClient(&Config{Endpoint: srv.URL, Model: "gpt-4o"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{UserMessage("q")}, CompletionOptions{Temperature: 0})
	require.NoError(t, err)

	sent := bodies()
	require.Len(t, sent, 1)
	temperature, ok := sent[0]["temperature"]
	require.True(t, ok, "temperature must be present so the endpoint does not apply its default")
	assert.Greater(t, temperature.(float64), 0.0)
	assert.Less(t, temperature.(float64), 1e-6)
}

func TestOpenAITemperature(t *testing.T) {
	assert.Equal(t, float32(0.1), openAITemperature(0.1))
	assert.Greater(t, openAITemperature(0), float32(0))
	assert.Greater(t, openAITemperature(-1), float32(0))
}
