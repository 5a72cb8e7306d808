package server

import (
	"errors"
	"net/http"

	"github.com/oriys/umbra/internal/logging"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/resolver"
	"github.com/oriys/umbra/internal/tenant"
)

// TenantMiddleware resolves the caller's tenant and installs it as the
// ambient identity for the rest of the request. Requests that cannot be
// pinned to an active tenant never reach the wrapped handler.
//
// Disabled and unknown tenants get the same response: revealing which of
// the two applies would leak directory state to unauthenticated callers.
func TenantMiddleware(res resolver.Resolver, lookup resolver.Lookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, err := res.Resolve(r)
			if err != nil {
				metrics.RecordResolution("unresolved")
				http.Error(w, "tenant could not be determined", http.StatusBadRequest)
				return
			}

			identity, err := resolver.IdentityFor(r.Context(), lookup, identifier, "http")
			if err != nil {
				switch {
				case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrTenantDisabled):
					metrics.RecordResolution("rejected")
					http.Error(w, "tenant access denied", http.StatusForbidden)
				default:
					metrics.RecordResolution("error")
					logging.OpWithTrace(observability.GetTraceID(r.Context()), observability.GetSpanID(r.Context())).
						Error("tenant lookup failed", "error", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
				return
			}

			metrics.RecordResolution("ok")
			ctx := tenant.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusFor maps engine errors to HTTP statuses. Isolation violations
// deliberately collapse to a generic 403: the attempted tenant and entity
// details go to the audit trail, not the caller.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, tenant.ErrIsolationViolation):
		return http.StatusForbidden
	case errors.Is(err, tenant.ErrNoContext):
		return http.StatusUnauthorized
	case errors.Is(err, tenant.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, tenant.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrTenantDisabled):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError sends the caller-safe message for err. Violation details are
// never echoed back.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusForbidden:
		http.Error(w, "access denied", status)
	case http.StatusUnauthorized:
		http.Error(w, "tenant identity required", status)
	case http.StatusInternalServerError:
		http.Error(w, "internal error", status)
	default:
		http.Error(w, err.Error(), status)
	}
}
