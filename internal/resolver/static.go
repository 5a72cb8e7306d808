package resolver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oriys/umbra/internal/tenant"
)

// staticFile is the YAML shape for a tenant fixture file:
//
//	tenants:
//	  - id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
//	    name: acme
//	    domain: acme.example.com
//	    active: true
type staticFile struct {
	Tenants []Info `yaml:"tenants"`
}

// StaticLookup serves tenant metadata from a YAML fixture file, indexed by
// id, name, and domain. Used for development and tests where a database is
// overkill.
type StaticLookup struct {
	byIdentifier map[string]*Info
}

// LoadStatic parses a tenant fixture file.
func LoadStatic(path string) (*StaticLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant fixture: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic builds a StaticLookup from raw YAML.
func ParseStatic(data []byte) (*StaticLookup, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tenant fixture: %w", err)
	}

	idx := make(map[string]*Info, len(f.Tenants)*3)
	for i := range f.Tenants {
		info := &f.Tenants[i]
		if strings.TrimSpace(info.ID) == "" {
			return nil, fmt.Errorf("tenant fixture entry %d: id is required", i)
		}
		for _, key := range []string{info.ID, info.Name, info.Domain} {
			if key == "" {
				continue
			}
			if _, exists := idx[key]; exists {
				return nil, fmt.Errorf("tenant fixture: duplicate identifier %q", key)
			}
			idx[key] = info
		}
	}
	return &StaticLookup{byIdentifier: idx}, nil
}

func (s *StaticLookup) Lookup(_ context.Context, identifier string) (*Info, error) {
	info, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, identifier)
	}
	return info, nil
}
