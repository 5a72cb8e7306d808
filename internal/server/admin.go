package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/umbra/internal/audit"
	"github.com/oriys/umbra/internal/elevate"
	"github.com/oriys/umbra/internal/store"
	"github.com/oriys/umbra/internal/tenant"
)

// AdminHandler manages the tenant directory. The admin surface is assumed
// to sit behind operator authentication (reverse proxy, mTLS); it runs
// under a system identity, and status flips require a justification so the
// audit trail explains who turned a tenant off and why.
type AdminHandler struct {
	Store      *store.PostgresStore
	Elevator   *elevate.Manager
	Invalidate func(identifier string)
}

// JustificationHeader carries the operator's reason for sensitive directory
// mutations.
const JustificationHeader = "X-Justification"

func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tenants", h.ListTenants)
	mux.HandleFunc("POST /v1/tenants", h.CreateTenant)
	mux.HandleFunc("GET /v1/tenants/{tenantID}", h.GetTenant)
	mux.HandleFunc("POST /v1/tenants/{tenantID}/enable", h.enableHandler(true))
	mux.HandleFunc("POST /v1/tenants/{tenantID}/disable", h.enableHandler(false))
	mux.HandleFunc("GET /v1/audit", h.ListAudit)
}

// adminContext installs the system identity the directory operations run
// under.
func adminContext(r *http.Request) *http.Request {
	ctx := tenant.WithIdentity(r.Context(), tenant.SystemScope("admin-api"))
	return r.WithContext(ctx)
}

func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	r = adminContext(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tenants, err := h.Store.ListTenants(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err)
		return
	}
	if tenants == nil {
		tenants = []*store.TenantRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tenants)
}

func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	r = adminContext(r)
	var req struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Domain string `json:"domain"`
		Active *bool  `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rec, err := h.Store.CreateTenant(r.Context(), &store.TenantRecord{
		ID:     req.ID,
		Name:   req.Name,
		Domain: req.Domain,
		Active: active,
	})
	if err != nil {
		if errors.Is(err, store.ErrTenantExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}

func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	r = adminContext(r)
	rec, err := h.Store.GetTenant(r.Context(), r.PathValue("tenantID"))
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// enableHandler builds the enable/disable handler. The flip runs inside an
// elevation scope so the justification, actor, and outcome land in the
// audit trail.
func (h *AdminHandler) enableHandler(active bool) http.HandlerFunc {
	verb := "disable"
	if active {
		verb = "enable"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r = adminContext(r)
		tenantID := r.PathValue("tenantID")

		justification := strings.TrimSpace(r.Header.Get(JustificationHeader))
		if justification == "" {
			http.Error(w, JustificationHeader+" header is required", http.StatusBadRequest)
			return
		}

		var rec *store.TenantRecord
		err := h.Elevator.Execute(r.Context(), verb+" tenant "+tenantID+": "+justification, func(ctx context.Context) error {
			var opErr error
			rec, opErr = h.Store.SetTenantActive(ctx, tenantID, active)
			return opErr
		})
		if err != nil {
			WriteError(w, err)
			return
		}

		if h.Invalidate != nil {
			// Drop every identifier the tenant can resolve by, not just
			// the one the admin used.
			h.Invalidate(rec.ID)
			h.Invalidate(rec.Name)
			if rec.Domain != "" {
				h.Invalidate(rec.Domain)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	r = adminContext(r)
	q := store.AuditQuery{
		Kind:     audit.Kind(r.URL.Query().Get("kind")),
		TenantID: r.URL.Query().Get("tenant_id"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		q.Limit = limit
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		q.Since = t
	}

	records, err := h.Store.ListAuditRecords(r.Context(), q)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
