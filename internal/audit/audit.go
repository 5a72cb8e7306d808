// Package audit defines the append-only audit trail for elevation scopes and
// isolation violations. Sinks are shared, concurrent-safe resources; writers
// never read back, so there is no read-modify-write contention.
package audit

import (
	"context"
	"time"
)

// Kind distinguishes the two record categories.
type Kind string

const (
	KindElevation Kind = "elevation"
	KindViolation Kind = "violation"
)

// Record is one audit entry. Violation records carry the attempted tenant and
// entity type; elevation records carry the justification and duration.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	Kind              Kind      `json:"kind"`
	TenantID          string    `json:"tenant_id"`
	AttemptedTenantID string    `json:"attempted_tenant_id,omitempty"`
	EntityType        string    `json:"entity_type,omitempty"`
	Op                string    `json:"op,omitempty"`
	Justification     string    `json:"justification,omitempty"`
	Actor             string    `json:"actor,omitempty"`
	Outcome           string    `json:"outcome"`
	DurationMS        int64     `json:"duration_ms,omitempty"`
}

// Sink receives audit records. Implementations must be safe for concurrent
// use and must not block identity restoration: callers treat Write as
// best-effort around the operations they audit.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) Write(context.Context, Record) error { return nil }

// MultiSink fans a record out to every sink. The first error is returned
// after all sinks have been attempted.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
