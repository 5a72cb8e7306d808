// Package guard implements the isolation gatekeeper: the single hook that
// narrows every read to the ambient tenant and validates every pending write
// against it before anything is committed. All repository traffic funnels
// through here; a data path that skips the gatekeeper is a defect.
package guard

import (
	"context"
	"time"

	"github.com/oriys/umbra/internal/audit"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/storage"
	"github.com/oriys/umbra/internal/tenant"
)

// Pending is the gatekeeper's type-erased view of one entity about to be
// committed. SetTenantID is non-nil for inserts so the gatekeeper can
// auto-tag an unset tenant id under tenant scope.
type Pending struct {
	Op          tenant.Op
	EntityType  string
	TenantID    string
	SetTenantID func(string)
}

// Gatekeeper enforces tenant boundaries for reads and writes. Violations are
// reported to the audit sink before being returned; auditing is best-effort
// and never changes the outcome.
type Gatekeeper struct {
	sink audit.Sink
}

// New returns a gatekeeper reporting violations to sink. A nil sink disables
// audit reporting.
func New(sink audit.Sink) *Gatekeeper {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Gatekeeper{sink: sink}
}

// Narrow applies the ambient tenant predicate to a read. System scope passes
// the query through unmodified; tenant scope pins it to the ambient tenant.
// Fails with ErrNoContext when no identity was installed.
func (g *Gatekeeper) Narrow(ctx context.Context, q *storage.Query) error {
	id, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	if id.IsSystem() {
		return nil
	}
	q.TenantID = id.TenantID()
	return nil
}

// Validate classifies and checks the full pending change set against the
// ambient identity. It runs before any physical write: the first violation
// rejects the whole set (no partial writes) and is recorded for audit with
// the entity type, attempted tenant, ambient tenant, and operation kind.
//
// Rules, per operation and scope:
//   - insert, tenant scope: unset tenant id is auto-tagged with the ambient
//     tenant; a different tenant id is a violation.
//   - insert, system scope: the tenant id must already be set; system
//     context never guesses a tenant.
//   - update/delete, tenant scope: the tenant id must equal the ambient
//     tenant.
//   - update/delete, system scope: any non-empty tenant id is accepted.
func (g *Gatekeeper) Validate(ctx context.Context, changes []Pending) error {
	id, err := tenant.Require(ctx)
	if err != nil {
		return err
	}

	for _, ch := range changes {
		if err := g.validateOne(ctx, id, ch); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gatekeeper) validateOne(ctx context.Context, id tenant.Identity, ch Pending) error {
	switch ch.Op {
	case tenant.OpInsert:
		if id.IsSystem() {
			if ch.TenantID == tenant.SystemTenantID {
				// Auto-tagging under system scope would silently orphan the
				// record under no tenant in particular.
				return g.reject(ctx, id, ch)
			}
			return nil
		}
		if ch.TenantID == tenant.SystemTenantID {
			if ch.SetTenantID != nil {
				ch.SetTenantID(id.TenantID())
			}
			return nil
		}
		if ch.TenantID != id.TenantID() {
			return g.reject(ctx, id, ch)
		}
		return nil

	case tenant.OpUpdate, tenant.OpDelete:
		if ch.TenantID == tenant.SystemTenantID {
			return g.reject(ctx, id, ch)
		}
		if !id.IsSystem() && ch.TenantID != id.TenantID() {
			return g.reject(ctx, id, ch)
		}
		return nil

	default:
		return g.reject(ctx, id, ch)
	}
}

func (g *Gatekeeper) reject(ctx context.Context, id tenant.Identity, ch Pending) error {
	verr := &tenant.ViolationError{
		EntityType:        ch.EntityType,
		AttemptedTenantID: ch.TenantID,
		AmbientTenantID:   id.TenantID(),
		Op:                ch.Op,
	}

	metrics.RecordViolation(ch.EntityType, string(ch.Op))
	_ = g.sink.Write(ctx, audit.Record{
		Timestamp:         time.Now().UTC(),
		Kind:              audit.KindViolation,
		TenantID:          id.TenantID(),
		AttemptedTenantID: ch.TenantID,
		EntityType:        ch.EntityType,
		Op:                string(ch.Op),
		Outcome:           "rejected",
	})

	return verr
}
