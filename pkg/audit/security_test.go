package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-vkg/pkg/middleware"
)

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

var testScope = Scope{RunID: "run-1", TenantID: "t1", WorkspaceID: "w1", Attempt: 2}

// contextWithRequestID runs a request through RequestLogger to obtain a context
// carrying the given request ID.
func contextWithRequestID(t *testing.T, id string) context.Context {
	t.Helper()
	var ctx context.Context
	handler := middleware.RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vkg/query", nil)
	req.Header.Set(middleware.RequestIDHeader, id)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, ctx)
	return ctx
}

func TestLogInjectionFingerprint(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionFingerprint(contextWithRequestID(t, "req-42"), testScope, InjectionDetails{
		Source:      "literal 1",
		Value:       "' OR '1'='1",
		Fingerprint: "s&sos",
	})

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)
	assert.Equal(t, "run-1", entry.ContextMap()["run_id"])
	assert.Equal(t, "s&sos", entry.ContextMap()["fingerprint"])

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(entry.ContextMap()["event_json"].(string)), &event))
	assert.Equal(t, EventSQLInjectionFingerprint, event.EventType)
	assert.Equal(t, testScope, event.Scope)
	assert.Equal(t, "req-42", event.RequestID)
	assert.Equal(t, "warning", event.Severity)
}

func TestLogInjectionFingerprint_TruncatesValue(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionFingerprint(context.Background(), testScope, InjectionDetails{
		Source:      "literal 1",
		Value:       strings.Repeat("x", 1000),
		Fingerprint: "s&1c",
	})

	var event struct {
		RequestID string           `json:"request_id"`
		Details   InjectionDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(recorded.All()[0].ContextMap()["event_json"].(string)), &event))
	assert.Len(t, event.Details.Value, maxAuditedValue+3)
	assert.Empty(t, event.RequestID)
}

func TestLogForbiddenStatement(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogForbiddenStatement(context.Background(), testScope, ForbiddenStatementDetails{
		Operation: "DROP",
		SQL:       "DROP TABLE\n  mysql.sales.customers",
	})

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "DROP", entry.ContextMap()["operation"])

	var event struct {
		EventType SecurityEventType         `json:"event_type"`
		Severity  string                    `json:"severity"`
		Details   ForbiddenStatementDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(entry.ContextMap()["event_json"].(string)), &event))
	assert.Equal(t, EventForbiddenStatement, event.EventType)
	assert.Equal(t, "critical", event.Severity)
	assert.Equal(t, "DROP TABLE mysql.sales.customers", event.Details.SQL)
}
