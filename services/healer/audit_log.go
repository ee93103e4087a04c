package healer

import (
	"context"

	"github.com/rs/zerolog"
)

// LogAudit writes audit entries as structured log lines.
type LogAudit struct {
	logger zerolog.Logger
}

// NewLogAudit returns an AuditLog backed by logger.
func NewLogAudit(logger zerolog.Logger) *LogAudit {
	return &LogAudit{logger: logger}
}

func (l *LogAudit) Append(_ context.Context, entry AuditEntry) error {
	l.logger.Info().
		Str("audit_type", "HEALING_ACTION").
		Str("invocation_id", entry.InvocationID.String()).
		Time("at", entry.Timestamp).
		Str("instance_id", entry.InstanceID).
		Str("action", entry.Action).
		Str("status", entry.Status).
		Str("details", entry.Details).
		Msg("HEALING_ACTION")
	return nil
}
