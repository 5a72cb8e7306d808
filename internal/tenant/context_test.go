package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRequireWithoutIdentity(t *testing.T) {
	_, err := Require(context.Background())
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}

func TestRequireWithIdentity(t *testing.T) {
	id, err := ForTenant("t-1", "test")
	if err != nil {
		t.Fatalf("ForTenant: %v", err)
	}
	ctx := WithIdentity(context.Background(), id)

	got, err := Require(ctx)
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if got.TenantID() != "t-1" {
		t.Fatalf("tenant id = %q, want t-1", got.TenantID())
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	a, _ := ForTenant("t-a", "test")
	b, _ := ForTenant("t-b", "test")

	ctx := WithIdentity(context.Background(), a)
	ctx = WithIdentity(ctx, b)

	got, err := Require(ctx)
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if got.TenantID() != "t-b" {
		t.Fatalf("re-install did not replace identity, got %q", got.TenantID())
	}
}

func TestZeroIdentityNotVisible(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{})
	if _, ok := FromContext(ctx); ok {
		t.Fatalf("zero identity must not be readable as established")
	}
}

// Concurrent logical operations each own their identity; one flow's identity
// must never be visible to or overwritten by another.
func TestConcurrentFlowsAreIndependent(t *testing.T) {
	tenants := []string{"t-1", "t-2", "t-3", "t-4"}

	var wg sync.WaitGroup
	for _, tid := range tenants {
		wg.Add(1)
		go func(tid string) {
			defer wg.Done()
			id, err := ForTenant(tid, "test")
			if err != nil {
				t.Errorf("ForTenant(%s): %v", tid, err)
				return
			}
			ctx := WithIdentity(context.Background(), id)
			for i := 0; i < 100; i++ {
				got, err := Require(ctx)
				if err != nil {
					t.Errorf("Require(%s): %v", tid, err)
					return
				}
				if got.TenantID() != tid {
					t.Errorf("flow %s observed tenant %s", tid, got.TenantID())
					return
				}
			}
		}(tid)
	}
	wg.Wait()
}

// A child branch elevating to system scope must not leak into siblings that
// share the parent context.
func TestChildScopeInvisibleToSiblings(t *testing.T) {
	id, _ := ForTenant("t-parent", "test")
	parent := WithIdentity(context.Background(), id)

	child := WithIdentity(parent, SystemScope("elevated:test"))

	got, err := Require(parent)
	if err != nil {
		t.Fatalf("Require(parent): %v", err)
	}
	if got.IsSystem() {
		t.Fatalf("child elevation visible through parent context")
	}

	elevated, err := Require(child)
	if err != nil {
		t.Fatalf("Require(child): %v", err)
	}
	if !elevated.IsSystem() {
		t.Fatalf("child context lost its elevation")
	}
}
