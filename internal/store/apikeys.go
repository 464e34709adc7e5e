// ABOUTME: Service API key issuance for the answer-service credential
// ABOUTME: Only the hash and a displayable fragment are persisted; raw keys live in the cache

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// serviceAPIKeyName is the fixed name of the per-tenant service key used by
// the bot to authenticate against the answer service.
const serviceAPIKeyName = "mattermost-service-key"

// GetOrCreateServiceAPIKey returns a raw service API key for the tenant.
// The raw key is never stored: if a row already exists the material is
// regenerated in place, because the only caller of this method is a cache
// that has no copy of the previous raw value.
func (s *SQLiteStore) GetOrCreateServiceAPIKey(ctx context.Context, tenantID string) (string, error) {
	raw := generateAPIKey(tenantID)

	existing, err := s.GetServiceAPIKey(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if existing != nil {
		s.logger.Debug("regenerating service API key missing from cache", "tenant_id", tenantID)

		query := `UPDATE api_keys SET hashed_key = ?, display_key = ? WHERE tenant_id = ? AND name = ?`
		if _, err := s.db.ExecContext(ctx, query,
			hashAPIKey(raw), displayAPIKey(raw), tenantID, serviceAPIKeyName); err != nil {
			return "", fmt.Errorf("rotating service API key: %w", err)
		}
		return raw, nil
	}

	s.logger.Info("creating service API key", "tenant_id", tenantID)

	query := `INSERT INTO api_keys (tenant_id, name, hashed_key, display_key, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		tenantID, serviceAPIKeyName, hashAPIKey(raw), displayAPIKey(raw),
		time.Now().UTC().Format(timeFormat)); err != nil {
		return "", fmt.Errorf("creating service API key: %w", err)
	}
	return raw, nil
}

// GetServiceAPIKey returns the stored key record (hash + display fragment).
func (s *SQLiteStore) GetServiceAPIKey(ctx context.Context, tenantID string) (*APIKey, error) {
	query := `SELECT tenant_id, name, hashed_key, display_key, created_at FROM api_keys WHERE tenant_id = ? AND name = ?`

	var (
		key       APIKey
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, serviceAPIKeyName).Scan(
		&key.TenantID, &key.Name, &key.HashedKey, &key.DisplayKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading service API key: %w", err)
	}

	ts, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	key.CreatedAt = ts
	return &key, nil
}

// DeleteServiceAPIKey removes the tenant's service key. Returns true if a
// row was deleted.
func (s *SQLiteStore) DeleteServiceAPIKey(ctx context.Context, tenantID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE tenant_id = ? AND name = ?`, tenantID, serviceAPIKeyName)
	if err != nil {
		return false, fmt.Errorf("deleting service API key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// generateAPIKey builds a raw key from two UUIDs worth of randomness.
func generateAPIKey(tenantID string) string {
	material := strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	return "mmb_" + tenantID + "_" + material
}

// hashAPIKey returns the hex sha256 of the raw key.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// displayAPIKey returns the operator-visible fragment of a raw key.
func displayAPIKey(raw string) string {
	if len(raw) <= 8 {
		return raw
	}
	return raw[:4] + "…" + raw[len(raw)-4:]
}
