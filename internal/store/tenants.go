package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oriys/umbra/internal/tenant"
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// TenantRecord is one row of the tenant directory.
type TenantRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrTenantExists reports a create that collides with an existing id, name,
// or domain.
var ErrTenantExists = errors.New("tenant already exists")

func validateTenantID(id string) (string, error) {
	v := strings.TrimSpace(id)
	if v == "" {
		return "", fmt.Errorf("%w: tenant id is required", tenant.ErrInvalidArgument)
	}
	if !tenantIDPattern.MatchString(v) {
		return "", fmt.Errorf("%w: tenant id must match %s", tenant.ErrInvalidArgument, tenantIDPattern)
	}
	return v, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, rec *TenantRecord) (*TenantRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: tenant record is required", tenant.ErrInvalidArgument)
	}
	id, err := validateTenantID(rec.ID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = id
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, domain, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, id, name, strings.TrimSpace(rec.Domain), rec.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrTenantExists, id)
		}
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	return s.GetTenant(ctx, id)
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*TenantRecord, error) {
	tenantID, err := validateTenantID(id)
	if err != nil {
		return nil, err
	}

	var rec TenantRecord
	err = s.pool.QueryRow(ctx, `
		SELECT id, name, domain, active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(
		&rec.ID,
		&rec.Name,
		&rec.Domain,
		&rec.Active,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &rec, nil
}

// FindTenant resolves an identifier that may be an id, a name, or a domain.
// Request middleware goes through here via StoreLookup.
func (s *PostgresStore) FindTenant(ctx context.Context, identifier string) (*TenantRecord, error) {
	v := strings.TrimSpace(identifier)
	if v == "" {
		return nil, fmt.Errorf("%w: tenant identifier is required", tenant.ErrInvalidArgument)
	}

	var rec TenantRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, domain, active, created_at, updated_at
		FROM tenants
		WHERE id = $1 OR name = $1 OR (domain <> '' AND domain = $1)
		LIMIT 1
	`, v).Scan(
		&rec.ID,
		&rec.Name,
		&rec.Domain,
		&rec.Active,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, v)
	}
	if err != nil {
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context, limit, offset int) ([]*TenantRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, domain, active, created_at, updated_at
		FROM tenants
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*TenantRecord, 0)
	for rows.Next() {
		var rec TenantRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.Domain,
			&rec.Active,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants rows: %w", err)
	}
	return tenants, nil
}

// SetTenantActive flips the active flag. Disabling a tenant cuts off new
// request resolution once caches expire; it does not touch stored data.
func (s *PostgresStore) SetTenantActive(ctx context.Context, id string, active bool) (*TenantRecord, error) {
	tenantID, err := validateTenantID(id)
	if err != nil {
		return nil, err
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET active = $2, updated_at = NOW()
		WHERE id = $1
	`, tenantID, active)
	if err != nil {
		return nil, fmt.Errorf("set tenant active: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, tenantID)
	}

	return s.GetTenant(ctx, tenantID)
}
