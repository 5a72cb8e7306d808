// Package repo provides the application-facing CRUD contract for tenant
// isolated entities. Every method funnels through the isolation gatekeeper:
// reads are narrowed to the ambient tenant, writes are validated as a set
// before anything is committed. Application code never talks to a storage
// backend directly.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oriys/umbra/internal/guard"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/storage"
	"github.com/oriys/umbra/internal/tenant"
)

// ErrNotFound is returned for absent rows. An id that exists under another
// tenant yields the same error as an id that does not exist anywhere, so a
// non-system caller can never probe whether a resource exists elsewhere.
var ErrNotFound = storage.ErrNotFound

// ErrMultipleResults is returned by FindSingle when more than one row matches.
var ErrMultipleResults = storage.ErrMultipleResults

// Predicate filters entities in application code. Predicates run over rows
// the gatekeeper already narrowed to the ambient tenant; they can only
// shrink the visible set, never widen it.
type Predicate[E any] func(E) bool

// idAssignable lets Add mint an id for entities created without one.
type idAssignable interface {
	SetEntityID(id string)
}

// Repository is the uniform CRUD facade over one isolated entity type.
type Repository[E tenant.Isolated] struct {
	entityType string
	backend    storage.Backend[E]
	gate       *guard.Gatekeeper
}

// New builds a repository for one entity type. entityType names the type in
// violation and audit records (e.g. "order").
func New[E tenant.Isolated](entityType string, backend storage.Backend[E], gate *guard.Gatekeeper) *Repository[E] {
	return &Repository[E]{
		entityType: entityType,
		backend:    backend,
		gate:       gate,
	}
}

// GetByID returns the entity with the given id within the ambient scope, or
// ErrNotFound, including when the id exists under another tenant.
func (r *Repository[E]) GetByID(ctx context.Context, id string) (E, error) {
	var zero E
	if id == "" {
		return zero, fmt.Errorf("%w: entity id is required", tenant.ErrInvalidArgument)
	}
	rows, err := r.query(ctx, storage.Query{IDs: []string{id}, Limit: 1})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// GetByIDs returns the entities matching ids within the ambient scope.
// Missing and foreign-tenant ids are silently absent from the result.
func (r *Repository[E]) GetByIDs(ctx context.Context, ids []string) ([]E, error) {
	if len(ids) == 0 {
		return []E{}, nil
	}
	return r.query(ctx, storage.Query{IDs: ids})
}

// GetAll returns every entity visible in the ambient scope.
func (r *Repository[E]) GetAll(ctx context.Context) ([]E, error) {
	return r.query(ctx, storage.Query{})
}

// Find returns the entities in scope matching pred. A nil pred matches all.
func (r *Repository[E]) Find(ctx context.Context, pred Predicate[E]) ([]E, error) {
	rows, err := r.query(ctx, storage.Query{})
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return rows, nil
	}
	out := rows[:0]
	for _, e := range rows {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindSingle returns the one entity in scope matching pred; ErrNotFound when
// none matches and ErrMultipleResults when more than one does.
func (r *Repository[E]) FindSingle(ctx context.Context, pred Predicate[E]) (E, error) {
	var zero E
	rows, err := r.Find(ctx, pred)
	if err != nil {
		return zero, err
	}
	switch len(rows) {
	case 0:
		return zero, ErrNotFound
	case 1:
		return rows[0], nil
	default:
		return zero, fmt.Errorf("%w: %d rows match", ErrMultipleResults, len(rows))
	}
}

// Count returns the number of entities in scope matching pred. A nil pred is
// pushed down to the backend.
func (r *Repository[E]) Count(ctx context.Context, pred Predicate[E]) (int64, error) {
	if pred == nil {
		q := storage.Query{}
		if err := r.gate.Narrow(ctx, &q); err != nil {
			return 0, err
		}
		return r.backend.Count(ctx, q)
	}
	rows, err := r.Find(ctx, pred)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Any reports whether at least one entity in scope matches pred.
func (r *Repository[E]) Any(ctx context.Context, pred Predicate[E]) (bool, error) {
	if pred == nil {
		rows, err := r.query(ctx, storage.Query{Limit: 1})
		if err != nil {
			return false, err
		}
		return len(rows) > 0, nil
	}
	rows, err := r.query(ctx, storage.Query{})
	if err != nil {
		return false, err
	}
	for _, e := range rows {
		if pred(e) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository[E]) query(ctx context.Context, q storage.Query) ([]E, error) {
	start := time.Now()
	if err := r.gate.Narrow(ctx, &q); err != nil {
		metrics.RecordRepositoryOp(r.entityType, string(tenant.OpRead), "error", time.Since(start))
		return nil, err
	}
	rows, err := r.backend.Query(ctx, q)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordRepositoryOp(r.entityType, string(tenant.OpRead), status, time.Since(start))
	return rows, err
}

// Add stages and commits one insert. Entities without an id are assigned a
// fresh UUID when the type supports it; entities without a tenant id are
// auto-tagged with the ambient tenant under tenant scope.
func (r *Repository[E]) Add(ctx context.Context, e E) error {
	return r.AddRange(ctx, []E{e})
}

// AddRange inserts a batch. Every member is validated before any is
// committed; one violation anywhere rejects the entire batch.
func (r *Repository[E]) AddRange(ctx context.Context, entities []E) error {
	for _, e := range entities {
		if e.EntityID() == "" {
			if assignable, ok := any(e).(idAssignable); ok {
				assignable.SetEntityID(uuid.NewString())
			}
		}
	}
	return r.commit(ctx, tenant.OpInsert, entities)
}

// Update stages and commits one update. The entity's embedded tenant id is
// validated against the ambient identity regardless of where the entity came
// from; the repository never trusts caller-supplied identifiers over the
// ambient scope.
func (r *Repository[E]) Update(ctx context.Context, e E) error {
	return r.UpdateRange(ctx, []E{e})
}

// UpdateRange updates a batch with the same all-or-nothing contract as
// AddRange.
func (r *Repository[E]) UpdateRange(ctx context.Context, entities []E) error {
	return r.commit(ctx, tenant.OpUpdate, entities)
}

// Delete removes one entity, validating its embedded tenant id against the
// ambient identity.
func (r *Repository[E]) Delete(ctx context.Context, e E) error {
	return r.DeleteRange(ctx, []E{e})
}

// DeleteByID loads the entity in the ambient scope and removes it. A foreign
// or absent id yields ErrNotFound.
func (r *Repository[E]) DeleteByID(ctx context.Context, id string) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return r.Delete(ctx, e)
}

// DeleteRange removes a batch with the same all-or-nothing contract as
// AddRange.
func (r *Repository[E]) DeleteRange(ctx context.Context, entities []E) error {
	return r.commit(ctx, tenant.OpDelete, entities)
}

// commit validates the full pending change set through the gatekeeper, then
// hands it to the backend as one atomic unit. Validation failures surface
// before any physical write.
func (r *Repository[E]) commit(ctx context.Context, op tenant.Op, entities []E) error {
	if len(entities) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "repo.commit",
		observability.AttrEntityType.String(r.entityType),
		observability.AttrOp.String(string(op)),
		attribute.Int("changes", len(entities)),
	)
	defer span.End()

	start := time.Now()
	pending := make([]guard.Pending, len(entities))
	for i := range entities {
		e := entities[i]
		pending[i] = guard.Pending{
			Op:          op,
			EntityType:  r.entityType,
			TenantID:    e.TenantID(),
			SetTenantID: e.SetTenantID,
		}
	}

	if err := r.gate.Validate(ctx, pending); err != nil {
		observability.SetSpanError(span, err)
		metrics.RecordRepositoryOp(r.entityType, string(op), "rejected", time.Since(start))
		return err
	}

	changes := make([]storage.Change[E], len(entities))
	for i, e := range entities {
		changes[i] = storage.Change[E]{Op: op, Entity: e}
	}
	if err := r.backend.Apply(ctx, changes); err != nil {
		observability.SetSpanError(span, err)
		status := "error"
		if errors.Is(err, storage.ErrNotFound) {
			status = "not_found"
		}
		metrics.RecordRepositoryOp(r.entityType, string(op), status, time.Since(start))
		return err
	}

	span.SetAttributes(observability.AttrDurationMs.Int64(time.Since(start).Milliseconds()))
	metrics.RecordRepositoryOp(r.entityType, string(op), "ok", time.Since(start))
	return nil
}
