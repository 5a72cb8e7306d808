package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/umbra/internal/guard"
	"github.com/oriys/umbra/internal/storage"
	"github.com/oriys/umbra/internal/tenant"
)

type order struct {
	ID     string `json:"id"`
	Tenant string `json:"tenant_id"`
	SKU    string `json:"sku"`
	Qty    int    `json:"qty"`
}

func (o *order) EntityID() string      { return o.ID }
func (o *order) SetEntityID(id string) { o.ID = id }
func (o *order) TenantID() string      { return o.Tenant }
func (o *order) SetTenantID(id string) { o.Tenant = id }

func newOrderRepo() *Repository[*order] {
	return New[*order]("order", storage.NewMemory[*order](), guard.New(nil))
}

func asTenant(t *testing.T, tenantID string) context.Context {
	t.Helper()
	id, err := tenant.ForTenant(tenantID, "test")
	if err != nil {
		t.Fatalf("ForTenant: %v", err)
	}
	return tenant.WithIdentity(context.Background(), id)
}

func asSystem() context.Context {
	return tenant.WithIdentity(context.Background(), tenant.SystemScope("test"))
}

func TestReadsRequireIdentity(t *testing.T) {
	r := newOrderRepo()
	_, err := r.GetAll(context.Background())
	if !errors.Is(err, tenant.ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}

// Scoping invariant: a read under tenant T returns only T's rows.
func TestScopingInvariant(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")
	ctxB := asTenant(t, "t-b")

	if err := r.Add(ctxA, &order{ID: "o1", SKU: "widget"}); err != nil {
		t.Fatalf("add under A: %v", err)
	}
	if err := r.Add(ctxB, &order{ID: "o2", SKU: "gadget"}); err != nil {
		t.Fatalf("add under B: %v", err)
	}

	rows, err := r.GetAll(ctxA)
	if err != nil {
		t.Fatalf("get all under A: %v", err)
	}
	if len(rows) != 1 || rows[0].Tenant != "t-a" {
		t.Fatalf("tenant A sees %d rows: %+v", len(rows), rows)
	}

	all, err := r.GetAll(asSystem())
	if err != nil {
		t.Fatalf("get all under system: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("system scope sees %d rows, want 2", len(all))
	}
}

// Auto-tag: an insert with unset tenant id lands under the ambient tenant.
func TestAutoTagOnInsert(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")

	o := &order{SKU: "widget"}
	if err := r.Add(ctxA, o); err != nil {
		t.Fatalf("add: %v", err)
	}
	if o.ID == "" {
		t.Fatalf("entity id was not minted")
	}
	if o.Tenant != "t-a" {
		t.Fatalf("entity was tagged %q, want t-a", o.Tenant)
	}

	got, err := r.GetByID(ctxA, o.ID)
	if err != nil {
		t.Fatalf("get under A: %v", err)
	}
	if got.Tenant != "t-a" {
		t.Fatalf("stored tenant = %q, want t-a", got.Tenant)
	}

	if _, err := r.GetByID(asTenant(t, "t-b"), o.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tenant B can see A's row: %v", err)
	}
}

// System-insert guard: system context never guesses a tenant.
func TestSystemInsertRequiresTenant(t *testing.T) {
	r := newOrderRepo()

	err := r.Add(asSystem(), &order{SKU: "widget"})
	if !errors.Is(err, tenant.ErrIsolationViolation) {
		t.Fatalf("expected isolation violation, got %v", err)
	}

	if err := r.Add(asSystem(), &order{SKU: "widget", Tenant: "t-z"}); err != nil {
		t.Fatalf("system insert with explicit tenant: %v", err)
	}
}

// Existence opacity: a foreign id and a nonexistent id are indistinguishable.
func TestExistenceOpacity(t *testing.T) {
	r := newOrderRepo()
	if err := r.Add(asTenant(t, "t-a"), &order{ID: "o1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctxB := asTenant(t, "t-b")
	_, errForeign := r.GetByID(ctxB, "o1")
	_, errAbsent := r.GetByID(ctxB, "does-not-exist")

	if !errors.Is(errForeign, ErrNotFound) || !errors.Is(errAbsent, ErrNotFound) {
		t.Fatalf("foreign=%v absent=%v, both must be ErrNotFound", errForeign, errAbsent)
	}
}

// Fail-closed mutation: update/delete of an entity whose embedded tenant id
// differs from the ambient scope is a violation and leaves storage unchanged.
func TestFailClosedUpdateAndDelete(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")
	seeded := &order{ID: "o1", Qty: 1}
	if err := r.Add(ctxA, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The entity still carries t-a in memory; ambient is t-b.
	ctxB := asTenant(t, "t-b")
	tampered := &order{ID: "o1", Tenant: "t-a", Qty: 99}

	if err := r.Update(ctxB, tampered); !errors.Is(err, tenant.ErrIsolationViolation) {
		t.Fatalf("update: expected isolation violation, got %v", err)
	}
	if err := r.Delete(ctxB, tampered); !errors.Is(err, tenant.ErrIsolationViolation) {
		t.Fatalf("delete: expected isolation violation, got %v", err)
	}

	got, err := r.GetByID(ctxA, "o1")
	if err != nil {
		t.Fatalf("get after blocked writes: %v", err)
	}
	if got.Qty != 1 {
		t.Fatalf("storage changed by blocked write: qty=%d", got.Qty)
	}
}

// An entity that lies about its tenant id to match the ambient scope still
// cannot reach another tenant's row: the backend matches id and tenant
// together, so the write degrades to not-found.
func TestSpoofedTenantIDHitsNothing(t *testing.T) {
	r := newOrderRepo()
	if err := r.Add(asTenant(t, "t-a"), &order{ID: "o1", Qty: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctxB := asTenant(t, "t-b")
	spoofed := &order{ID: "o1", Tenant: "t-b", Qty: 99}
	if err := r.Update(ctxB, spoofed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := r.GetByID(asTenant(t, "t-a"), "o1")
	if err != nil || got.Qty != 1 {
		t.Fatalf("row damaged by spoofed update: %+v, %v", got, err)
	}
}

// Batch atomicity: one violating member rejects the entire batch.
func TestBatchAtomicity(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")

	err := r.AddRange(ctxA, []*order{
		{ID: "o1"},
		{ID: "o2", Tenant: "t-b"}, // foreign member
		{ID: "o3"},
	})
	if !errors.Is(err, tenant.ErrIsolationViolation) {
		t.Fatalf("expected isolation violation, got %v", err)
	}

	n, err := r.Count(ctxA, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("batch partially committed: %d rows", n)
	}
}

func TestFindAndFindSingle(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")
	if err := r.AddRange(ctxA, []*order{
		{ID: "o1", SKU: "widget", Qty: 2},
		{ID: "o2", SKU: "widget", Qty: 5},
		{ID: "o3", SKU: "gadget", Qty: 1},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	widgets, err := r.Find(ctxA, func(o *order) bool { return o.SKU == "widget" })
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(widgets) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(widgets))
	}

	single, err := r.FindSingle(ctxA, func(o *order) bool { return o.SKU == "gadget" })
	if err != nil {
		t.Fatalf("find single: %v", err)
	}
	if single.ID != "o3" {
		t.Fatalf("find single returned %s", single.ID)
	}

	if _, err := r.FindSingle(ctxA, func(o *order) bool { return o.SKU == "widget" }); !errors.Is(err, ErrMultipleResults) {
		t.Fatalf("expected ErrMultipleResults, got %v", err)
	}
	if _, err := r.FindSingle(ctxA, func(o *order) bool { return o.SKU == "nothing" }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountAndAny(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")
	ctxB := asTenant(t, "t-b")
	if err := r.AddRange(ctxA, []*order{{ID: "o1"}, {ID: "o2"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := r.Count(ctxA, nil)
	if err != nil || n != 2 {
		t.Fatalf("count under A = %d, %v", n, err)
	}
	n, err = r.Count(ctxB, nil)
	if err != nil || n != 0 {
		t.Fatalf("count under B = %d, %v", n, err)
	}

	ok, err := r.Any(ctxA, nil)
	if err != nil || !ok {
		t.Fatalf("any under A = %v, %v", ok, err)
	}
	ok, err = r.Any(ctxB, nil)
	if err != nil || ok {
		t.Fatalf("any under B = %v, %v", ok, err)
	}
}

func TestGetByIDsSkipsForeignRows(t *testing.T) {
	r := newOrderRepo()
	if err := r.Add(asTenant(t, "t-a"), &order{ID: "o1"}); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if err := r.Add(asTenant(t, "t-b"), &order{ID: "o2"}); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	rows, err := r.GetByIDs(asTenant(t, "t-a"), []string{"o1", "o2", "o9"})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "o1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestDeleteByIDOpacity(t *testing.T) {
	r := newOrderRepo()
	if err := r.Add(asTenant(t, "t-a"), &order{ID: "o1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := r.DeleteByID(asTenant(t, "t-b"), "o1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := r.DeleteByID(asTenant(t, "t-a"), "o1"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := r.GetByID(asTenant(t, "t-a"), "o1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("row still present after delete: %v", err)
	}
}

// End-to-end scenario from the isolation contract: add under A, read under A,
// invisible under B, delete under B blocked.
func TestEndToEndScenario(t *testing.T) {
	r := newOrderRepo()
	ctxA := asTenant(t, "t-a")
	ctxB := asTenant(t, "t-b")

	o := &order{SKU: "widget"}
	if err := r.Add(ctxA, o); err != nil {
		t.Fatalf("add: %v", err)
	}
	if o.Tenant != "t-a" {
		t.Fatalf("auto-tag failed: %q", o.Tenant)
	}

	if _, err := r.GetByID(ctxA, o.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := r.GetByID(ctxB, o.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign read: %v", err)
	}

	// Entity still carries tenant A in memory while ambient is B.
	if err := r.Delete(ctxB, o); !errors.Is(err, tenant.ErrIsolationViolation) {
		t.Fatalf("foreign delete: %v", err)
	}
	if _, err := r.GetByID(ctxA, o.ID); err != nil {
		t.Fatalf("row lost after blocked delete: %v", err)
	}
}
