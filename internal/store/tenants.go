// ABOUTME: Tenant rows for the multi-tenant store
// ABOUTME: Tenants gate which customers the routing cache refresh considers

package store

import (
	"context"
	"fmt"
	"time"
)

// timeFormat is the canonical timestamp encoding for TEXT columns.
const timeFormat = time.RFC3339Nano

// CreateTenant inserts a new, ungated tenant row.
func (s *SQLiteStore) CreateTenant(ctx context.Context, id string) error {
	query := `INSERT INTO tenants (tenant_id, gated, created_at) VALUES (?, 0, ?)`

	if _, err := s.db.ExecContext(ctx, query, id, time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	return nil
}

// SetTenantGated flips the gated flag for a tenant. Gated tenants are
// skipped by the routing cache refresh.
func (s *SQLiteStore) SetTenantGated(ctx context.Context, id string, gated bool) error {
	query := `UPDATE tenants SET gated = ? WHERE tenant_id = ?`

	res, err := s.db.ExecContext(ctx, query, boolToInt(gated), id)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTenantIDs returns the IDs of all tenants, gated or not.
func (s *SQLiteStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	return s.listTenantIDs(ctx, `SELECT tenant_id FROM tenants ORDER BY tenant_id`)
}

// ListGatedTenantIDs returns the IDs of tenants currently gated.
func (s *SQLiteStore) ListGatedTenantIDs(ctx context.Context) ([]string, error) {
	return s.listTenantIDs(ctx, `SELECT tenant_id FROM tenants WHERE gated = 1 ORDER BY tenant_id`)
}

func (s *SQLiteStore) listTenantIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
