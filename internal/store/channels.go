// ABOUTME: Channel config CRUD and the channel-sync diff
// ABOUTME: Sync reconciles stored configs against the platform's current channel list

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const channelConfigColumns = `id, team_config_id, channel_id, channel_name, channel_type, enabled, require_bot_invocation, thread_only_mode, persona_override_id`

// GetChannelConfig returns the channel config for (team_id, channel_id),
// joining through the team config so callers work with platform ids.
func (s *SQLiteStore) GetChannelConfig(ctx context.Context, tenantID, teamID, channelID string) (*ChannelConfig, error) {
	query := `
		SELECT c.id, c.team_config_id, c.channel_id, c.channel_name, c.channel_type,
		       c.enabled, c.require_bot_invocation, c.thread_only_mode, c.persona_override_id
		FROM channel_configs c
		JOIN team_configs t ON t.id = c.team_config_id
		WHERE t.tenant_id = ? AND t.team_id = ? AND c.channel_id = ?
	`

	cfg, err := scanChannelConfig(s.db.QueryRowContext(ctx, query, tenantID, teamID, channelID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading channel config: %w", err)
	}
	return cfg, nil
}

// ListChannelConfigs returns all channel configs for a team config.
func (s *SQLiteStore) ListChannelConfigs(ctx context.Context, teamConfigID int64) ([]*ChannelConfig, error) {
	query := `SELECT ` + channelConfigColumns + ` FROM channel_configs WHERE team_config_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, teamConfigID)
	if err != nil {
		return nil, fmt.Errorf("listing channel configs: %w", err)
	}
	defer rows.Close()

	var configs []*ChannelConfig
	for rows.Next() {
		cfg, err := scanChannelConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning channel config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// CreateChannelConfig inserts a channel config with default settings.
// New channels start disabled until an admin enables them.
func (s *SQLiteStore) CreateChannelConfig(ctx context.Context, teamConfigID int64, view ChannelView) (*ChannelConfig, error) {
	query := `
		INSERT INTO channel_configs (team_config_id, channel_id, channel_name, channel_type)
		VALUES (?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query, teamConfigID, view.ChannelID, view.ChannelName, view.ChannelType)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateChannel
		}
		return nil, fmt.Errorf("creating channel config: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading insert id: %w", err)
	}
	return &ChannelConfig{
		ID:                   id,
		TeamConfigID:         teamConfigID,
		ChannelID:            view.ChannelID,
		ChannelName:          view.ChannelName,
		ChannelType:          view.ChannelType,
		Enabled:              false,
		RequireBotInvocation: true,
	}, nil
}

// BulkCreateChannelConfigs creates configs for any channels not yet stored,
// skipping existing ones. Returns the number created.
func (s *SQLiteStore) BulkCreateChannelConfigs(ctx context.Context, teamConfigID int64, views []ChannelView) (int, error) {
	existing, err := s.ListChannelConfigs(ctx, teamConfigID)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, cfg := range existing {
		known[cfg.ChannelID] = true
	}

	created := 0
	for _, view := range views {
		if known[view.ChannelID] {
			continue
		}
		if _, err := s.CreateChannelConfig(ctx, teamConfigID, view); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// UpdateChannelConfig writes the mutable channel config fields.
func (s *SQLiteStore) UpdateChannelConfig(ctx context.Context, cfg *ChannelConfig) error {
	query := `
		UPDATE channel_configs
		SET channel_name = ?, channel_type = ?, enabled = ?,
		    require_bot_invocation = ?, thread_only_mode = ?, persona_override_id = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		cfg.ChannelName,
		cfg.ChannelType,
		boolToInt(cfg.Enabled),
		boolToInt(cfg.RequireBotInvocation),
		boolToInt(cfg.ThreadOnlyMode),
		cfg.PersonaOverrideID,
		cfg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating channel config: %w", err)
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

// DeleteChannelConfig removes a channel config by internal id.
func (s *SQLiteStore) DeleteChannelConfig(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channel_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting channel config: %w", err)
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

// SyncChannelConfigs reconciles stored channel configs against the
// platform's current channel list:
//   - channels present on the platform but not stored are created (disabled)
//   - stored channels that vanished from the platform are removed
//   - name/type changes on surviving channels are written through
//
// Returns (added, removed, updated) counts.
func (s *SQLiteStore) SyncChannelConfigs(ctx context.Context, teamConfigID int64, current []ChannelView) (int, int, int, error) {
	currentByID := make(map[string]ChannelView, len(current))
	for _, view := range current {
		currentByID[view.ChannelID] = view
	}

	existing, err := s.ListChannelConfigs(ctx, teamConfigID)
	if err != nil {
		return 0, 0, 0, err
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, cfg := range existing {
		existingIDs[cfg.ChannelID] = true
	}

	added := 0
	for channelID, view := range currentByID {
		if existingIDs[channelID] {
			continue
		}
		if _, err := s.CreateChannelConfig(ctx, teamConfigID, view); err != nil {
			return added, 0, 0, err
		}
		added++
	}

	removed := 0
	updated := 0
	for _, cfg := range existing {
		view, stillPresent := currentByID[cfg.ChannelID]
		if !stillPresent {
			if err := s.DeleteChannelConfig(ctx, cfg.ID); err != nil {
				return added, removed, updated, err
			}
			removed++
			continue
		}

		if cfg.ChannelName != view.ChannelName || cfg.ChannelType != view.ChannelType {
			cfg.ChannelName = view.ChannelName
			cfg.ChannelType = view.ChannelType
			if err := s.UpdateChannelConfig(ctx, cfg); err != nil {
				return added, removed, updated, err
			}
			updated++
		}
	}

	return added, removed, updated, nil
}

func scanChannelConfig(row scanner) (*ChannelConfig, error) {
	var (
		cfg        ChannelConfig
		enabled    int
		requireInv int
		threadOnly int
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.TeamConfigID,
		&cfg.ChannelID,
		&cfg.ChannelName,
		&cfg.ChannelType,
		&enabled,
		&requireInv,
		&threadOnly,
		&cfg.PersonaOverrideID,
	); err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0
	cfg.RequireBotInvocation = requireInv != 0
	cfg.ThreadOnlyMode = threadOnly != 0
	return &cfg, nil
}
