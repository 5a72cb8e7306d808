// Package tenant defines the ambient tenant identity and the capability
// contract for tenant-isolated entities. The identity says which tenant the
// current logical operation is allowed to touch; every read and write against
// isolated entities is checked against it. This centralizes tenant boundary
// state so the gatekeeper, repositories, and elevation all apply consistent
// rules regardless of transport or storage backend.
package tenant

import (
	"fmt"
	"strings"
)

// SystemTenantID is the sentinel id carried by a system-scoped identity.
// A non-system identity must never carry it.
const SystemTenantID = ""

// Identity is the immutable ambient scope for one logical operation: either
// one specific tenant, or the unscoped system scope that may touch any
// tenant's data. Replaced wholesale when scope changes, never mutated.
//
// Invariant: system == true ⇔ tenantID == SystemTenantID.
type Identity struct {
	tenantID string
	system   bool
	source   string
}

// ForTenant builds a tenant-scoped identity. The source is free-text
// provenance ("token-claim", "header:x-tenant-id", ...) used for logging and
// audit only, never for authorization decisions.
func ForTenant(tenantID, source string) (Identity, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Identity{}, fmt.Errorf("%w: tenant id is required for a tenant-scoped identity", ErrInvalidArgument)
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return Identity{}, fmt.Errorf("%w: source is required", ErrInvalidArgument)
	}
	return Identity{tenantID: tenantID, source: source}, nil
}

// SystemScope builds an unscoped identity permitted to read and write across
// all tenants. An empty source falls back to "system".
func SystemScope(source string) Identity {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "system"
	}
	return Identity{system: true, source: source}
}

// TenantID returns the scoped tenant id; SystemTenantID for system scope.
func (id Identity) TenantID() string { return id.tenantID }

// IsSystem reports whether the identity is unscoped.
func (id Identity) IsSystem() bool { return id.system }

// Source returns the provenance string the identity was built with.
func (id Identity) Source() string { return id.source }

// Established reports whether the identity was built by a constructor. The
// zero Identity is not a valid scope and must never be installed.
func (id Identity) Established() bool { return id.system || id.tenantID != "" }

func (id Identity) String() string {
	if id.system {
		return fmt.Sprintf("system(%s)", id.source)
	}
	return fmt.Sprintf("tenant(%s, %s)", id.tenantID, id.source)
}
