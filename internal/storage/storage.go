// Package storage defines the backend contract beneath tenant repositories.
// Backends execute already-narrowed queries and already-validated change
// sets; they never consult the ambient identity themselves. The tenant
// predicate arrives exactly one way (Query.TenantID, Change entity tenant)
// which keeps the set of read paths enumerable.
package storage

import (
	"context"
	"errors"

	"github.com/oriys/umbra/internal/tenant"
)

var (
	// ErrNotFound is returned when no row matches. A row that exists under
	// another tenant produces the same error as a row that does not exist
	// at all, so callers cannot probe other tenants' key spaces.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateID is returned when an insert collides with an existing id.
	ErrDuplicateID = errors.New("storage: duplicate id")

	// ErrMultipleResults is returned when a single-result query matches
	// more than one row.
	ErrMultipleResults = errors.New("storage: multiple results")
)

// Query describes a read against one isolated entity type. TenantID is set
// exclusively by the isolation gatekeeper: empty means unscoped (system
// context), anything else narrows the scan to that tenant's rows.
type Query struct {
	TenantID string
	IDs      []string
	Limit    int
}

// Scoped reports whether the query carries a tenant predicate.
func (q Query) Scoped() bool { return q.TenantID != "" }

// Change is one pending write, classified before commit.
type Change[E tenant.Isolated] struct {
	Op     tenant.Op
	Entity E
}

// Backend stores one isolated entity type. Apply is atomic: either every
// change in the set is committed or none is.
type Backend[E tenant.Isolated] interface {
	// Query returns the rows matching q, already narrowed by q.TenantID.
	Query(ctx context.Context, q Query) ([]E, error)
	// Count returns the number of rows matching q.
	Count(ctx context.Context, q Query) (int64, error)
	// Apply commits a validated change set. Updates and deletes match on
	// both id and the entity's tenant id; a row held by another tenant is
	// reported as ErrNotFound.
	Apply(ctx context.Context, changes []Change[E]) error
}
