// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides tenant/team/channel config persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			tenant_id  TEXT PRIMARY KEY,
			gated      INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS team_configs (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id          TEXT NOT NULL REFERENCES tenants(tenant_id),
			registration_key   TEXT NOT NULL UNIQUE,
			team_id            TEXT UNIQUE,
			team_name          TEXT,
			enabled            INTEGER NOT NULL DEFAULT 1,
			default_persona_id INTEGER,
			registered_at      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_team_configs_tenant
			ON team_configs(tenant_id);

		CREATE TABLE IF NOT EXISTS channel_configs (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			team_config_id         INTEGER NOT NULL REFERENCES team_configs(id) ON DELETE CASCADE,
			channel_id             TEXT NOT NULL,
			channel_name           TEXT NOT NULL,
			channel_type           TEXT NOT NULL,
			enabled                INTEGER NOT NULL DEFAULT 0,
			require_bot_invocation INTEGER NOT NULL DEFAULT 1,
			thread_only_mode       INTEGER NOT NULL DEFAULT 0,
			persona_override_id    INTEGER,

			UNIQUE (team_config_id, channel_id)
		);

		CREATE INDEX IF NOT EXISTS idx_channel_configs_team
			ON channel_configs(team_config_id);

		CREATE TABLE IF NOT EXISTS bot_configs (
			tenant_id   TEXT PRIMARY KEY REFERENCES tenants(tenant_id),
			server_url  TEXT NOT NULL,
			bot_token   TEXT NOT NULL,
			bot_user_id TEXT
		);

		CREATE TABLE IF NOT EXISTS api_keys (
			tenant_id   TEXT NOT NULL REFERENCES tenants(tenant_id),
			name        TEXT NOT NULL,
			hashed_key  TEXT NOT NULL,
			display_key TEXT NOT NULL,
			created_at  TEXT NOT NULL,

			PRIMARY KEY (tenant_id, name)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
