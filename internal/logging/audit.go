// Audit events are structured records of security-relevant decisions:
// blocked external writes, role denials, breaker transitions. They are
// emitted through a dedicated logger so downstream shippers can split them
// from operational logs, and mirrored into an in-process ring for tests and
// the debug endpoints.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditEventType identifies an audit event.
type AuditEventType string

const (
	AuditExternalPersistenceBlocked AuditEventType = "external_persistence_blocked"
	AuditRoleDenied                 AuditEventType = "role_denied"
	AuditBreakerStateChange         AuditEventType = "breaker_state_change"
)

// Audit severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// AuditEvent is one audit record.
type AuditEvent struct {
	Timestamp time.Time      `json:"ts"`
	EventType AuditEventType `json:"event"`
	Severity  string         `json:"severity"`
	Target    string         `json:"target,omitempty"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

const auditRingSize = 1024

var (
	auditMu   sync.Mutex
	auditRing []AuditEvent
)

// Audit records an audit event. It never fails; audit logging must not break
// the request path.
func Audit(event AuditEventType, severity, target, msg string, fields map[string]any) {
	ev := AuditEvent{
		Timestamp: time.Now(),
		EventType: event,
		Severity:  severity,
		Target:    target,
		Message:   msg,
		Fields:    fields,
	}

	auditMu.Lock()
	auditRing = append(auditRing, ev)
	if len(auditRing) > auditRingSize {
		auditRing = auditRing[len(auditRing)-auditRingSize:]
	}
	auditMu.Unlock()

	L(CategoryAudit).Info(msg,
		zap.String("event", string(event)),
		zap.String("severity", severity),
		zap.String("target", target),
		zap.Any("fields", fields),
	)
}

// RecentAuditEvents returns up to n most recent audit events, newest last.
func RecentAuditEvents(n int) []AuditEvent {
	auditMu.Lock()
	defer auditMu.Unlock()
	if n <= 0 || n > len(auditRing) {
		n = len(auditRing)
	}
	out := make([]AuditEvent, n)
	copy(out, auditRing[len(auditRing)-n:])
	return out
}

// ResetAudit clears recorded audit events. Tests only.
func ResetAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditRing = nil
}
