// ABOUTME: Store interface and data types for mattermost-bot persistence
// ABOUTME: Defines tenant, team, channel, bot config and API key records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned when registering a team config whose
// team_id has already been set. Registration is a one-way transition.
var ErrAlreadyRegistered = errors.New("team config already registered")

// ErrBotConfigExists is returned when creating a bot config for a tenant
// that already has one (at most one per tenant).
var ErrBotConfigExists = errors.New("bot config already exists")

// ErrDuplicateChannel is returned when creating a channel config that
// collides on (team_config_id, channel_id).
var ErrDuplicateChannel = errors.New("duplicate channel config")

// ErrDuplicateTeam is returned when a team_id is already claimed by
// another team config. A team maps to at most one tenant.
var ErrDuplicateTeam = errors.New("team already claimed")

// Tenant represents an isolated customer instance of the backend.
// Gated tenants are excluded from the routing cache refresh.
type Tenant struct {
	ID        string
	Gated     bool
	CreatedAt time.Time
}

// TeamConfig links a Mattermost team to a tenant. A config is created with
// only a registration key; TeamID stays nil until a team redeems the key.
type TeamConfig struct {
	ID               int64
	TenantID         string
	RegistrationKey  string
	TeamID           *string
	TeamName         *string
	Enabled          bool
	DefaultPersonaID *int64
	RegisteredAt     *time.Time
}

// ChannelConfig holds per-channel response settings for a registered team.
// New channels created by sync are disabled until an admin enables them.
type ChannelConfig struct {
	ID                   int64
	TeamConfigID         int64
	ChannelID            string
	ChannelName          string
	ChannelType          string
	Enabled              bool
	RequireBotInvocation bool
	ThreadOnlyMode       bool
	PersonaOverrideID    *int64
}

// ChannelView is a channel as reported by the chat platform, used as input
// to the sync diff.
type ChannelView struct {
	ChannelID   string
	ChannelName string
	ChannelType string
}

// BotConfig holds the per-tenant Mattermost connection settings (at most
// one row per tenant).
type BotConfig struct {
	TenantID  string
	ServerURL string
	BotToken  string
	BotUserID string
}

// APIKey is a stored service API key. Only the hash and a displayable
// fragment are persisted; the raw key lives in the routing cache.
type APIKey struct {
	TenantID   string
	Name       string
	HashedKey  string
	DisplayKey string
	CreatedAt  time.Time
}

// Store defines persistence operations for tenant, team and channel
// configuration plus service API key issuance.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, id string) error
	SetTenantGated(ctx context.Context, id string, gated bool) error
	ListTenantIDs(ctx context.Context) ([]string, error)
	ListGatedTenantIDs(ctx context.Context) ([]string, error)

	// Team configs
	CreateTeamConfig(ctx context.Context, tenantID, registrationKey string) (*TeamConfig, error)
	GetTeamConfig(ctx context.Context, id int64) (*TeamConfig, error)
	GetTeamConfigByTeamID(ctx context.Context, tenantID, teamID string) (*TeamConfig, error)
	GetTeamConfigByRegistrationKey(ctx context.Context, tenantID, key string) (*TeamConfig, error)
	ListTeamConfigs(ctx context.Context, tenantID string) ([]*TeamConfig, error)
	RegisterTeam(ctx context.Context, id int64, teamID, teamName string, registeredAt time.Time) error
	UpdateTeamConfig(ctx context.Context, id int64, enabled bool, defaultPersonaID *int64) error
	DeleteTeamConfig(ctx context.Context, id int64) error

	// Channel configs
	GetChannelConfig(ctx context.Context, tenantID, teamID, channelID string) (*ChannelConfig, error)
	ListChannelConfigs(ctx context.Context, teamConfigID int64) ([]*ChannelConfig, error)
	CreateChannelConfig(ctx context.Context, teamConfigID int64, view ChannelView) (*ChannelConfig, error)
	BulkCreateChannelConfigs(ctx context.Context, teamConfigID int64, views []ChannelView) (int, error)
	UpdateChannelConfig(ctx context.Context, cfg *ChannelConfig) error
	DeleteChannelConfig(ctx context.Context, id int64) error
	SyncChannelConfigs(ctx context.Context, teamConfigID int64, current []ChannelView) (added, removed, updated int, err error)

	// Bot config
	GetBotConfig(ctx context.Context, tenantID string) (*BotConfig, error)
	SetBotConfig(ctx context.Context, cfg *BotConfig) error
	DeleteBotConfig(ctx context.Context, tenantID string) error

	// Service API key. GetOrCreateServiceAPIKey returns the raw key; only
	// its hash is stored. If a key row already exists the material is
	// regenerated, since the raw value is never persisted and a caller
	// asking for it has lost its in-memory copy.
	GetOrCreateServiceAPIKey(ctx context.Context, tenantID string) (string, error)
	GetServiceAPIKey(ctx context.Context, tenantID string) (*APIKey, error)
	DeleteServiceAPIKey(ctx context.Context, tenantID string) (bool, error)

	// Close releases any resources held by the store
	Close() error
}
