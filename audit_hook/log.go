package audithook

import (
	"context"
	"log/slog"
)

// LogRecorder writes audit events to logger, mapping severity to level.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, ev *AuditEvent) error {
		level := slog.LevelInfo
		switch ev.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityError, SeverityCritical:
			level = slog.LevelError
		}
		logger.LogAttrs(ctx, level, "audit",
			slog.String("action", ev.Action),
			slog.String("resource", ev.Resource),
			slog.String("resource_id", ev.ResourceID),
			slog.String("tenant_id", ev.TenantID),
			slog.String("actor_id", ev.ActorID),
			slog.String("outcome", ev.Outcome),
			slog.Any("metadata", ev.Metadata),
		)
		return nil
	})
}
