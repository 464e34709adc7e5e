// ABOUTME: Team config CRUD and the one-shot registration transition
// ABOUTME: A registration key binds a Mattermost team to a tenant exactly once

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateTeamConfig inserts a team config carrying only a registration key.
// The team_id stays NULL until a team redeems the key.
func (s *SQLiteStore) CreateTeamConfig(ctx context.Context, tenantID, registrationKey string) (*TeamConfig, error) {
	query := `INSERT INTO team_configs (tenant_id, registration_key, enabled) VALUES (?, ?, 1)`

	res, err := s.db.ExecContext(ctx, query, tenantID, registrationKey)
	if err != nil {
		return nil, fmt.Errorf("creating team config: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading insert id: %w", err)
	}
	return s.GetTeamConfig(ctx, id)
}

// GetTeamConfig returns a team config by internal id.
func (s *SQLiteStore) GetTeamConfig(ctx context.Context, id int64) (*TeamConfig, error) {
	return s.getTeamConfig(ctx, `WHERE id = ?`, id)
}

// GetTeamConfigByTeamID returns the team config bound to a Mattermost team id.
func (s *SQLiteStore) GetTeamConfigByTeamID(ctx context.Context, tenantID, teamID string) (*TeamConfig, error) {
	return s.getTeamConfig(ctx, `WHERE tenant_id = ? AND team_id = ?`, tenantID, teamID)
}

// GetTeamConfigByRegistrationKey returns the team config holding the given key.
func (s *SQLiteStore) GetTeamConfigByRegistrationKey(ctx context.Context, tenantID, key string) (*TeamConfig, error) {
	return s.getTeamConfig(ctx, `WHERE tenant_id = ? AND registration_key = ?`, tenantID, key)
}

const teamConfigColumns = `id, tenant_id, registration_key, team_id, team_name, enabled, default_persona_id, registered_at`

func (s *SQLiteStore) getTeamConfig(ctx context.Context, where string, args ...any) (*TeamConfig, error) {
	query := `SELECT ` + teamConfigColumns + ` FROM team_configs ` + where

	cfg, err := scanTeamConfig(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading team config: %w", err)
	}
	return cfg, nil
}

// ListTeamConfigs returns all team configs for a tenant.
func (s *SQLiteStore) ListTeamConfigs(ctx context.Context, tenantID string) ([]*TeamConfig, error) {
	query := `SELECT ` + teamConfigColumns + ` FROM team_configs WHERE tenant_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing team configs: %w", err)
	}
	defer rows.Close()

	var configs []*TeamConfig
	for rows.Next() {
		cfg, err := scanTeamConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// RegisterTeam completes registration by setting team_id, team_name and the
// registration timestamp. The WHERE clause on team_id IS NULL makes the
// transition irreversible: a config that already carries a team is left
// untouched and ErrAlreadyRegistered is returned.
func (s *SQLiteStore) RegisterTeam(ctx context.Context, id int64, teamID, teamName string, registeredAt time.Time) error {
	query := `
		UPDATE team_configs
		SET team_id = ?, team_name = ?, registered_at = ?
		WHERE id = ? AND team_id IS NULL
	`

	res, err := s.db.ExecContext(ctx, query,
		teamID, teamName, registeredAt.UTC().Format(timeFormat), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTeam
		}
		return fmt.Errorf("registering team: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		// Either the config does not exist or its key was already used.
		if _, getErr := s.GetTeamConfig(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAlreadyRegistered
	}
	return nil
}

// UpdateTeamConfig updates the enabled flag and default persona.
func (s *SQLiteStore) UpdateTeamConfig(ctx context.Context, id int64, enabled bool, defaultPersonaID *int64) error {
	query := `UPDATE team_configs SET enabled = ?, default_persona_id = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, boolToInt(enabled), defaultPersonaID, id)
	if err != nil {
		return fmt.Errorf("updating team config: %w", err)
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

// DeleteTeamConfig removes a team config; channel configs cascade.
func (s *SQLiteStore) DeleteTeamConfig(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM team_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting team config: %w", err)
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

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTeamConfig(row scanner) (*TeamConfig, error) {
	var (
		cfg          TeamConfig
		enabled      int
		registeredAt sql.NullString
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.RegistrationKey,
		&cfg.TeamID,
		&cfg.TeamName,
		&enabled,
		&cfg.DefaultPersonaID,
		&registeredAt,
	); err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0

	if registeredAt.Valid {
		ts, err := time.Parse(timeFormat, registeredAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing registered_at: %w", err)
		}
		cfg.RegisteredAt = &ts
	}
	return &cfg, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
