package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"sql": "SELECT 1"}`, `{"sql": "SELECT 1"}`},
		{"plain array", `[1, 2, 3]`, `[1, 2, 3]`},
		{"prose around object", "Here is the query:\n{\"sql\": \"SELECT 1\"}\nLet me know.", `{"sql": "SELECT 1"}`},
		{"think tags", "<think>maybe {a}</think>\n{\"ok\": true}", `{"ok": true}`},
		{"code fence", "```json\n{\"plan\": {\"entities\": [\"Customer\"]}}\n```", `{"plan": {"entities": ["Customer"]}}`},
		{"braces in strings", `{"sql": "SELECT '}' FROM t"}`, `{"sql": "SELECT '}' FROM t"}`},
		{"escaped quotes", `{"q": "say \"hi\" {"}`, `{"q": "say \"hi\" {"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, input := range []string{"", "SELECT id FROM mysql.sales.customers", "{not json"} {
		_, err := ExtractJSON(input)
		assert.Error(t, err, input)
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		SQL string `json:"sql"`
	}

	got, err := ParseJSONResponse[payload]("Sure!\n```json\n{\"sql\": \"SELECT 1\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got.SQL)

	_, err = ParseJSONResponse[payload](`["not", "an", "object"]`)
	assert.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"prose then fence", "The query is:\n```sql\nSELECT 1\n```\nDone.", "SELECT 1"},
		{"no fence", "  SELECT 1  ", "SELECT 1"},
		{"unterminated fence", "```sql\nSELECT 1", "SELECT 1"},
		{"think then fence", "<think>hmm</think>```sql\nSELECT 2\n```", "SELECT 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.input))
		})
	}
}
