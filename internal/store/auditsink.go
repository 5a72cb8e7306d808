package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/umbra/internal/audit"
)

// AuditSink persists audit records in the audit_log table. It satisfies
// audit.Sink; callers treat writes as best-effort, so failures surface as
// errors but must never gate the guarded operation.
type AuditSink struct {
	store *PostgresStore
}

func NewAuditSink(store *PostgresStore) *AuditSink {
	return &AuditSink{store: store}
}

func (s *AuditSink) Write(ctx context.Context, rec audit.Record) error {
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO audit_log (
			occurred_at, kind, tenant_id, attempted_tenant_id,
			entity_type, op, justification, actor, outcome, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.Timestamp,
		string(rec.Kind),
		rec.TenantID,
		rec.AttemptedTenantID,
		rec.EntityType,
		rec.Op,
		rec.Justification,
		rec.Actor,
		rec.Outcome,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// AuditQuery filters audit_log reads.
type AuditQuery struct {
	Kind     audit.Kind
	TenantID string
	Since    time.Time
	Limit    int
}

func (s *PostgresStore) ListAuditRecords(ctx context.Context, q AuditQuery) ([]audit.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	where := "occurred_at >= $1"
	args := []any{q.Since}
	if q.Kind != "" {
		args = append(args, string(q.Kind))
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if q.TenantID != "" {
		args = append(args, q.TenantID)
		where += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT occurred_at, kind, tenant_id, attempted_tenant_id,
		       entity_type, op, justification, actor, outcome, duration_ms
		FROM audit_log
		WHERE %s
		ORDER BY occurred_at DESC
		LIMIT $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]audit.Record, 0)
	for rows.Next() {
		var rec audit.Record
		var kind string
		if err := rows.Scan(
			&rec.Timestamp,
			&kind,
			&rec.TenantID,
			&rec.AttemptedTenantID,
			&rec.EntityType,
			&rec.Op,
			&rec.Justification,
			&rec.Actor,
			&rec.Outcome,
			&rec.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Kind = audit.Kind(kind)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit records rows: %w", err)
	}
	return records, nil
}
