package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

// Action tags for the state-changing operations the core emits.
const (
	ActionUploadAccepted      = "document.upload_accepted"
	ActionProcessingStarted   = "document.processing_started"
	ActionProcessingCompleted = "document.processing_completed"
	ActionProcessingFailed    = "document.processing_failed"
	ActionDocumentDeleted     = "document.deleted"
)

// Logger writes one JSON line per audit event through a dedicated slog
// handler. Delivery is best-effort; nothing downstream depends on it.
type Logger struct {
	log *slog.Logger
}

func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log.With("channel", "audit")}
}

func (l *Logger) Record(_ context.Context, event domain.AuditEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	attrs := []any{
		"actor", event.Actor,
		"action", event.Action,
		"resource_kind", event.ResourceKind,
		"resource_id", event.ResourceID,
		"at", event.At.Format(time.RFC3339Nano),
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}
	l.log.Info("audit_event", attrs...)
}

// Event builds a document-scoped audit event.
func Event(actor, action, documentID string, details map[string]any) domain.AuditEvent {
	return domain.AuditEvent{
		Actor:        actor,
		Action:       action,
		ResourceKind: "document",
		ResourceID:   documentID,
		At:           time.Now().UTC(),
		Details:      details,
	}
}
