package audit

import (
	"context"
	"log/slog"

	"github.com/oriys/umbra/internal/logging"
)

// LogSink writes audit records to the operational structured logger.
// Violations log at warn, elevations at info.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink backed by the given logger, or the operational
// logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.Op()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, rec Record) error {
	attrs := []any{
		"kind", string(rec.Kind),
		"tenant_id", rec.TenantID,
		"outcome", rec.Outcome,
	}
	switch rec.Kind {
	case KindViolation:
		attrs = append(attrs,
			"attempted_tenant_id", rec.AttemptedTenantID,
			"entity_type", rec.EntityType,
			"op", rec.Op,
		)
		s.logger.Warn("tenant isolation violation", attrs...)
	case KindElevation:
		attrs = append(attrs,
			"justification", rec.Justification,
			"duration_ms", rec.DurationMS,
		)
		if rec.Actor != "" {
			attrs = append(attrs, "actor", rec.Actor)
		}
		s.logger.Info("elevation scope closed", attrs...)
	default:
		s.logger.Info("audit record", attrs...)
	}
	return nil
}
