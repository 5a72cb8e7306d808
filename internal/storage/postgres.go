package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/umbra/internal/tenant"
)

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Postgres stores one isolated entity type in its own table, shaped like
// (id TEXT PK, tenant_id TEXT, data JSONB, created_at, updated_at). The
// entity document lives in the data column; tenant_id is denormalized so the
// narrowing predicate is a plain indexed column match.
type Postgres[E tenant.Isolated] struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres returns a backend over the given table, creating the table and
// its tenant index when missing.
func NewPostgres[E tenant.Isolated](ctx context.Context, pool *pgxpool.Pool, table string) (*Postgres[E], error) {
	table = strings.TrimSpace(table)
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid entity table name: %q", table)
	}

	p := &Postgres[E]{pool: pool, table: table}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres[E]) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tenant_id ON %s(tenant_id)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", p.table, err)
		}
	}
	return nil
}

func (p *Postgres[E]) buildWhere(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Scoped() {
		args = append(args, q.TenantID)
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if len(q.IDs) > 0 {
		args = append(args, q.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *Postgres[E]) Query(ctx context.Context, q Query) ([]E, error) {
	where, args := p.buildWhere(q)
	sql := fmt.Sprintf(`SELECT data FROM %s%s ORDER BY id`, p.table, where)
	if q.Limit > 0 {
		sql = fmt.Sprintf("%s LIMIT %d", sql, q.Limit)
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p.table, err)
	}
	defer rows.Close()

	out := make([]E, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.table, err)
		}
		var e E
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", p.table, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s rows: %w", p.table, err)
	}
	return out, nil
}

func (p *Postgres[E]) Count(ctx context.Context, q Query) (int64, error) {
	where, args := p.buildWhere(q)
	var n int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*)::bigint FROM %s%s`, p.table, where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", p.table, err)
	}
	return n, nil
}

// Apply commits the change set in a single transaction. Updates and deletes
// carry the tenant predicate in the WHERE clause even though the gatekeeper
// already validated the set, so a row held by another tenant can never be
// touched through this path either.
func (p *Postgres[E]) Apply(ctx context.Context, changes []Change[E]) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", p.table, err)
	}
	defer tx.Rollback(ctx)

	for _, ch := range changes {
		id := ch.Entity.EntityID()
		if id == "" {
			return fmt.Errorf("storage: %s with empty entity id", ch.Op)
		}

		switch ch.Op {
		case tenant.OpInsert:
			data, err := json.Marshal(ch.Entity)
			if err != nil {
				return fmt.Errorf("encode %s row: %w", p.table, err)
			}
			_, err = tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (id, tenant_id, data, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
			`, p.table), id, ch.Entity.TenantID(), data)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return fmt.Errorf("%w: %s", ErrDuplicateID, id)
				}
				return fmt.Errorf("insert %s: %w", p.table, err)
			}

		case tenant.OpUpdate:
			data, err := json.Marshal(ch.Entity)
			if err != nil {
				return fmt.Errorf("encode %s row: %w", p.table, err)
			}
			ct, err := tx.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET data = $3, updated_at = NOW()
				WHERE id = $1 AND tenant_id = $2
			`, p.table), id, ch.Entity.TenantID(), data)
			if err != nil {
				return fmt.Errorf("update %s: %w", p.table, err)
			}
			if ct.RowsAffected() == 0 {
				return ErrNotFound
			}

		case tenant.OpDelete:
			ct, err := tx.Exec(ctx, fmt.Sprintf(`
				DELETE FROM %s WHERE id = $1 AND tenant_id = $2
			`, p.table), id, ch.Entity.TenantID())
			if err != nil {
				return fmt.Errorf("delete %s: %w", p.table, err)
			}
			if ct.RowsAffected() == 0 {
				return ErrNotFound
			}

		default:
			return fmt.Errorf("storage: unknown change op %q", ch.Op)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s tx: %w", p.table, err)
	}
	return nil
}
