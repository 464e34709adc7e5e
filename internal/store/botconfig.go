// ABOUTME: Per-tenant Mattermost bot connection settings
// ABOUTME: At most one bot config row per tenant (server URL, token, bot user id)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetBotConfig returns the bot config for a tenant, or ErrNotFound.
func (s *SQLiteStore) GetBotConfig(ctx context.Context, tenantID string) (*BotConfig, error) {
	query := `SELECT tenant_id, server_url, bot_token, bot_user_id FROM bot_configs WHERE tenant_id = ?`

	var (
		cfg       BotConfig
		botUserID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&cfg.TenantID, &cfg.ServerURL, &cfg.BotToken, &botUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading bot config: %w", err)
	}
	cfg.BotUserID = botUserID.String
	return &cfg, nil
}

// SetBotConfig inserts or replaces the tenant's bot config. The server URL
// is stored without a trailing slash.
func (s *SQLiteStore) SetBotConfig(ctx context.Context, cfg *BotConfig) error {
	query := `
		INSERT INTO bot_configs (tenant_id, server_url, bot_token, bot_user_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			server_url = excluded.server_url,
			bot_token = excluded.bot_token,
			bot_user_id = excluded.bot_user_id
	`

	var botUserID any
	if cfg.BotUserID != "" {
		botUserID = cfg.BotUserID
	}

	_, err := s.db.ExecContext(ctx, query,
		cfg.TenantID, strings.TrimRight(cfg.ServerURL, "/"), cfg.BotToken, botUserID)
	if err != nil {
		return fmt.Errorf("writing bot config: %w", err)
	}
	return nil
}

// DeleteBotConfig removes the tenant's bot config.
func (s *SQLiteStore) DeleteBotConfig(ctx context.Context, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("deleting bot config: %w", err)
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
