package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of action being logged.
type AuditEvent string

const (
	AuditSessionOpened        AuditEvent = "session_opened"
	AuditSessionClosed        AuditEvent = "session_closed"
	AuditTokenMinted          AuditEvent = "token_minted"
	AuditTokenRejected        AuditEvent = "token_rejected"
	AuditOperationStarted     AuditEvent = "operation_started"
	AuditOperationCanceled    AuditEvent = "operation_canceled"
	AuditEnrollmentsRemoved   AuditEvent = "enrollments_removed"
	AuditAuthenticatorIDReset AuditEvent = "authenticator_id_invalidated"
	AuditLockoutReset         AuditEvent = "lockout_reset"
	AuditSessionOpenRejected  AuditEvent = "session_open_rejected"
)

// auditLogger wraps slog.Logger for structured audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logSession is a convenience for events scoped to a session.
func (al *auditLogger) logSession(event AuditEvent, r *http.Request, sessionID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("session_id", sessionID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
