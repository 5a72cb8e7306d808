package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/umbra/internal/resolver"
	"github.com/oriys/umbra/internal/tenant"
)

type fakeLookup map[string]*resolver.Info

func (f fakeLookup) Lookup(_ context.Context, identifier string) (*resolver.Info, error) {
	info, ok := f[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, identifier)
	}
	return info, nil
}

var testLookup = fakeLookup{
	"acme":    {ID: "t-acme", Name: "acme", Active: true},
	"dormant": {ID: "t-dormant", Name: "dormant", Active: false},
}

func guardedEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := tenant.Require(r.Context())
		if err != nil {
			t.Fatalf("handler reached without identity: %v", err)
		}
		fmt.Fprint(w, id.TenantID())
	})
}

func TestTenantMiddlewareInstallsIdentity(t *testing.T) {
	h := TenantMiddleware(resolver.HeaderResolver{}, testLookup)(guardedEcho(t))

	r := httptest.NewRequest("GET", "/orders", nil)
	r.Header.Set("X-Tenant-ID", "acme")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	if w.Body.String() != "t-acme" {
		t.Fatalf("handler saw tenant %q", w.Body.String())
	}
}

func TestTenantMiddlewareRejectsUnresolvedRequests(t *testing.T) {
	h := TenantMiddleware(resolver.HeaderResolver{}, testLookup)(guardedEcho(t))

	r := httptest.NewRequest("GET", "/orders", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTenantMiddlewareHidesDirectoryState(t *testing.T) {
	h := TenantMiddleware(resolver.HeaderResolver{}, testLookup)(guardedEcho(t))

	// Unknown and disabled tenants must be indistinguishable to the caller.
	var bodies [2]string
	for i, id := range []string{"ghost", "dormant"} {
		r := httptest.NewRequest("GET", "/orders", nil)
		r.Header.Set("X-Tenant-ID", id)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if w.Code != http.StatusForbidden {
			t.Fatalf("%s: status = %d", id, w.Code)
		}
		bodies[i] = w.Body.String()
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("unknown vs disabled responses differ: %q vs %q", bodies[0], bodies[1])
	}
}

func TestStatusForMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&tenant.ViolationError{EntityType: "order", Op: tenant.OpUpdate}, http.StatusForbidden},
		{tenant.ErrNoContext, http.StatusUnauthorized},
		{tenant.ErrInvalidArgument, http.StatusBadRequest},
		{tenant.ErrTenantNotFound, http.StatusNotFound},
		{tenant.ErrTenantDisabled, http.StatusForbidden},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteErrorHidesViolationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, &tenant.ViolationError{
		EntityType:        "order",
		AttemptedTenantID: "t-victim",
		AmbientTenantID:   "t-attacker",
		Op:                tenant.OpUpdate,
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if body != "access denied\n" {
		t.Fatalf("violation details leaked: %q", body)
	}
}
