package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oriys/umbra/internal/tenant"
)

// Memory is an in-process backend used by tests and embedded setups. Entities
// are stored and returned as JSON clones so callers can never mutate a stored
// row through a shared pointer.
type Memory[E tenant.Isolated] struct {
	mu   sync.RWMutex
	rows map[string]E
}

func NewMemory[E tenant.Isolated]() *Memory[E] {
	return &Memory[E]{rows: make(map[string]E)}
}

func cloneEntity[E any](e E) (E, error) {
	var out E
	data, err := json.Marshal(e)
	if err != nil {
		return out, fmt.Errorf("clone entity: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("clone entity: %w", err)
	}
	return out, nil
}

func (m *Memory[E]) matches(e E, q Query) bool {
	if q.Scoped() && e.TenantID() != q.TenantID {
		return false
	}
	if len(q.IDs) > 0 {
		found := false
		for _, id := range q.IDs {
			if e.EntityID() == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Memory[E]) Query(_ context.Context, q Query) ([]E, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]E, 0)
	for _, e := range m.rows {
		if !m.matches(e, q) {
			continue
		}
		c, err := cloneEntity(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory[E]) Count(_ context.Context, q Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.rows {
		if m.matches(e, q) {
			n++
		}
	}
	return n, nil
}

func (m *Memory[E]) Apply(_ context.Context, changes []Change[E]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check the full set before touching anything: one bad change rejects
	// the whole batch with no partial writes.
	staged := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		id := ch.Entity.EntityID()
		if id == "" {
			return fmt.Errorf("storage: %s with empty entity id", ch.Op)
		}
		switch ch.Op {
		case tenant.OpInsert:
			if _, exists := m.rows[id]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateID, id)
			}
			if _, exists := staged[id]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateID, id)
			}
			staged[id] = struct{}{}
		case tenant.OpUpdate, tenant.OpDelete:
			existing, exists := m.rows[id]
			if !exists || existing.TenantID() != ch.Entity.TenantID() {
				return ErrNotFound
			}
		default:
			return fmt.Errorf("storage: unknown change op %q", ch.Op)
		}
	}

	for _, ch := range changes {
		id := ch.Entity.EntityID()
		switch ch.Op {
		case tenant.OpInsert, tenant.OpUpdate:
			c, err := cloneEntity(ch.Entity)
			if err != nil {
				return err
			}
			m.rows[id] = c
		case tenant.OpDelete:
			delete(m.rows, id)
		}
	}
	return nil
}
