package store

import (
	"context"

	"github.com/oriys/umbra/internal/resolver"
)

// StoreLookup adapts the tenant directory to resolver.Lookup so request
// middleware can resolve identifiers straight from Postgres. Wrap it in
// resolver.NewCachedLookup or resolver.NewRedisLookup for hot paths.
type StoreLookup struct {
	store *PostgresStore
}

func NewStoreLookup(store *PostgresStore) *StoreLookup {
	return &StoreLookup{store: store}
}

func (l *StoreLookup) Lookup(ctx context.Context, identifier string) (*resolver.Info, error) {
	rec, err := l.store.FindTenant(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return &resolver.Info{
		ID:     rec.ID,
		Name:   rec.Name,
		Domain: rec.Domain,
		Active: rec.Active,
	}, nil
}
