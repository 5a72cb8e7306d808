package tenant

// Entity is any persisted record addressable by id.
type Entity interface {
	EntityID() string
}

// Isolated marks an entity type as tenant isolated: it carries a tenant id
// field and is subject to the gatekeeper's read narrowing and write
// validation. The gatekeeper and repositories are written against this
// capability rather than against concrete types.
//
// SetTenantID exists for insert auto-tagging and is only ever called by the
// gatekeeper; application code should treat the tenant id as read-only.
type Isolated interface {
	Entity
	TenantID() string
	SetTenantID(id string)
}
