// ABOUTME: Store-backed Loader feeding the routing cache from SQLite
// ABOUTME: Issues a service API key when the cache holds no raw copy for a tenant

package cache

import (
	"context"
	"errors"

	"github.com/onyx-dot-app/mattermost-bot/internal/store"
)

// StoreLoader adapts a store.Store to the cache Loader interface.
type StoreLoader struct {
	store store.Store
}

// NewStoreLoader wraps a store for use by the routing cache.
func NewStoreLoader(s store.Store) *StoreLoader {
	return &StoreLoader{store: s}
}

// TenantIDs lists every tenant in the store.
func (l *StoreLoader) TenantIDs(ctx context.Context) ([]string, error) {
	return l.store.ListTenantIDs(ctx)
}

// GatedTenantIDs lists tenants flagged gated.
func (l *StoreLoader) GatedTenantIDs(ctx context.Context) ([]string, error) {
	return l.store.ListGatedTenantIDs(ctx)
}

// LoadTenant returns the tenant's enabled team ids, API key and bot
// credentials. When the tenant has registered teams but the cache holds no
// raw key, a key is created (or rotated) in the store.
func (l *StoreLoader) LoadTenant(ctx context.Context, tenantID, cachedKey string) ([]string, string, string, string, error) {
	var serverURL, botToken string
	botCfg, err := l.store.GetBotConfig(ctx, tenantID)
	if err == nil {
		serverURL = botCfg.ServerURL
		botToken = botCfg.BotToken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, "", "", "", err
	}

	configs, err := l.store.ListTeamConfigs(ctx, tenantID)
	if err != nil {
		return nil, "", "", "", err
	}

	var teamIDs []string
	for _, cfg := range configs {
		if cfg.Enabled && cfg.TeamID != nil {
			teamIDs = append(teamIDs, *cfg.TeamID)
		}
	}

	if len(teamIDs) == 0 {
		return nil, "", serverURL, botToken, nil
	}

	if cachedKey == "" {
		newKey, err := l.store.GetOrCreateServiceAPIKey(ctx, tenantID)
		if err != nil {
			return nil, "", "", "", err
		}
		return teamIDs, newKey, serverURL, botToken, nil
	}

	return teamIDs, cachedKey, serverURL, botToken, nil
}
