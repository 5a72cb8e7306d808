// Package resolver extracts tenant identifiers from inbound requests and
// resolves them to tenant metadata. The isolation core takes no opinion on
// how resolution happens; everything here is a collaborator that feeds the
// ambient identity, with the active flag as the only hard gate.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/oriys/umbra/internal/tenant"
)

// Info is the resolved tenant metadata the core consults.
type Info struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Domain string `json:"domain" yaml:"domain"`
	Active bool   `json:"active" yaml:"active"`
}

// Resolver extracts a raw tenant identifier from an HTTP request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// Lookup resolves a raw identifier (tenant id, name, or domain) to tenant
// metadata. Implementations decide their own identifier space.
type Lookup interface {
	Lookup(ctx context.Context, identifier string) (*Info, error)
}

// HeaderResolver reads the tenant identifier from a request header.
type HeaderResolver struct {
	Header string
}

// DefaultTenantHeader is used when HeaderResolver.Header is empty.
const DefaultTenantHeader = "X-Tenant-ID"

func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	header := h.Header
	if header == "" {
		header = DefaultTenantHeader
	}
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return "", fmt.Errorf("%w: header %s is empty", tenant.ErrResolutionFailed, header)
	}
	return v, nil
}

// SubdomainResolver extracts the tenant from the leftmost host label, e.g.
// "acme" from acme.app.example.com with BaseDomain "app.example.com".
type SubdomainResolver struct {
	BaseDomain string
}

func (s SubdomainResolver) Resolve(r *http.Request) (string, error) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	base := strings.TrimPrefix(s.BaseDomain, ".")
	if base == "" || !strings.HasSuffix(host, "."+base) {
		return "", fmt.Errorf("%w: host %q is not under %q", tenant.ErrResolutionFailed, host, base)
	}
	sub := strings.TrimSuffix(host, "."+base)
	if sub == "" || strings.Contains(sub, ".") {
		return "", fmt.Errorf("%w: ambiguous subdomain %q", tenant.ErrResolutionFailed, sub)
	}
	return sub, nil
}

// PathResolver extracts the tenant from the first path segment after Prefix,
// e.g. "acme" from /t/acme/orders with Prefix "/t/".
type PathResolver struct {
	Prefix string
}

func (p PathResolver) Resolve(r *http.Request) (string, error) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = "/t/"
	}
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return "", fmt.Errorf("%w: path %q lacks tenant prefix", tenant.ErrResolutionFailed, r.URL.Path)
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	seg, _, _ := strings.Cut(rest, "/")
	if seg == "" {
		return "", fmt.Errorf("%w: empty tenant path segment", tenant.ErrResolutionFailed)
	}
	return seg, nil
}

// Composite tries each resolver in order and returns the first identifier
// found; it fails only when every strategy fails.
type Composite []Resolver

func (c Composite) Resolve(r *http.Request) (string, error) {
	var lastErr error
	for _, res := range c {
		id, err := res.Resolve(r)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no resolvers configured", tenant.ErrResolutionFailed)
	}
	return "", lastErr
}

// IdentityFor runs a lookup and converts the result into a tenant-scoped
// identity. The active flag is a hard gate: a disabled tenant resolves to
// ErrTenantDisabled no matter how it was identified.
func IdentityFor(ctx context.Context, lookup Lookup, identifier, source string) (tenant.Identity, error) {
	info, err := lookup.Lookup(ctx, identifier)
	if err != nil {
		return tenant.Identity{}, err
	}
	if !info.Active {
		return tenant.Identity{}, fmt.Errorf("%w: %s", tenant.ErrTenantDisabled, info.ID)
	}
	return tenant.ForTenant(info.ID, source)
}
