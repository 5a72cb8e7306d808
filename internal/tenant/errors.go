package tenant

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for tenant isolation enforcement.
var (
	// ErrNoContext is returned when code reads the ambient identity before
	// one was installed for the current logical operation. This is a
	// programming error and is intentionally fatal rather than defaulted: a
	// silent "no filter" default would reintroduce the cross-tenant leak
	// this package exists to prevent.
	ErrNoContext = errors.New("tenant: no identity established")

	// ErrInvalidArgument is returned for caller errors such as an empty
	// tenant id on a tenant-scoped identity or an empty elevation
	// justification.
	ErrInvalidArgument = errors.New("tenant: invalid argument")

	// ErrIsolationViolation is returned when an attempted read or write
	// crosses a tenant boundary without authorization. Callers may branch
	// on it with errors.Is, e.g. to answer "forbidden" at an API boundary.
	ErrIsolationViolation = errors.New("tenant: isolation violation")

	// ErrResolutionFailed is returned when an inbound request's tenant
	// identifier cannot be resolved (empty, ambiguous, or malformed).
	ErrResolutionFailed = errors.New("tenant: resolution failed")

	// ErrTenantNotFound is returned when the target tenant does not exist.
	ErrTenantNotFound = errors.New("tenant: tenant not found")

	// ErrTenantDisabled is returned when operations are attempted against
	// a disabled or suspended tenant.
	ErrTenantDisabled = errors.New("tenant: tenant disabled")
)

// Op classifies the operation that triggered a violation.
type Op string

const (
	OpRead   Op = "read"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ViolationError carries everything the audit sink needs about a blocked
// cross-tenant operation without requiring a second lookup. It unwraps to
// ErrIsolationViolation.
type ViolationError struct {
	EntityType        string
	AttemptedTenantID string
	AmbientTenantID   string
	Op                Op
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("tenant: isolation violation: %s %s: entity tenant %q, ambient tenant %q",
		e.Op, e.EntityType, e.AttemptedTenantID, e.AmbientTenantID)
}

func (e *ViolationError) Unwrap() error {
	return ErrIsolationViolation
}
