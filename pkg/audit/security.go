// Package audit provides security audit logging for SIEM consumption.
// Events are written as structured JSON under the "security_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/logging"
	"github.com/ekaya-inc/ekaya-vkg/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionFingerprint is logged when a string literal in generated SQL
	// matches a libinjection fingerprint.
	EventSQLInjectionFingerprint SecurityEventType = "sql_injection_fingerprint"
	// EventForbiddenStatement is logged when generated SQL tries to write or change schema.
	EventForbiddenStatement SecurityEventType = "forbidden_statement"
)

// Scope identifies the pipeline run an event belongs to.
type Scope struct {
	RunID       string `json:"run_id"`
	TenantID    string `json:"tenant_id"`
	WorkspaceID string `json:"workspace_id"`
	Attempt     int    `json:"attempt"`
}

// SecurityEvent is one auditable event with the context needed for SIEM analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	Scope     Scope             `json:"scope"`
	RequestID string            `json:"request_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a literal that matched a libinjection fingerprint.
type InjectionDetails struct {
	Source      string `json:"source"` // e.g. "literal 2"
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
}

// ForbiddenStatementDetails describes generated SQL rejected for writing data.
type ForbiddenStatementDetails struct {
	Operation string `json:"operation"`
	SQL       string `json:"sql"`
}

// maxAuditedValue bounds literal text copied into audit events.
const maxAuditedValue = 200

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionFingerprint records a generated-SQL literal that looks like an
// injection payload. The statement was still allowed, so this is a warning.
func (a *SecurityAuditor) LogInjectionFingerprint(ctx context.Context, scope Scope, details InjectionDetails) {
	details.Value = logging.TruncateString(details.Value, maxAuditedValue)
	event := a.event(ctx, EventSQLInjectionFingerprint, scope, details, "warning")

	a.logger.Warn("SQL injection fingerprint in generated SQL",
		zap.String("event_json", marshalEvent(event)),
		zap.String("run_id", scope.RunID),
		zap.String("tenant_id", scope.TenantID),
		zap.String("workspace_id", scope.WorkspaceID),
		zap.String("source", details.Source),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", event.Severity),
	)
}

// LogForbiddenStatement records generated SQL that tried to modify data or schema.
// Such a statement is never executed; it is logged at ERROR for alerting.
func (a *SecurityAuditor) LogForbiddenStatement(ctx context.Context, scope Scope, details ForbiddenStatementDetails) {
	details.SQL = logging.SanitizeSQL(details.SQL)
	event := a.event(ctx, EventForbiddenStatement, scope, details, "critical")

	a.logger.Error("Forbidden statement generated",
		zap.String("event_json", marshalEvent(event)),
		zap.String("run_id", scope.RunID),
		zap.String("tenant_id", scope.TenantID),
		zap.String("workspace_id", scope.WorkspaceID),
		zap.String("operation", details.Operation),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, scope Scope, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Scope:     scope,
		RequestID: middleware.RequestIDFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
}

func marshalEvent(event SecurityEvent) string {
	// Known types only; marshaling cannot fail.
	b, _ := json.Marshal(event)
	return string(b)
}
