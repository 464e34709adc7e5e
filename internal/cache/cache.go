// ABOUTME: In-memory routing cache mapping teams to tenants and tenants to credentials
// ABOUTME: Refreshed wholesale on a timer and incrementally after team registration

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrRefreshFailed is returned when a full refresh cycle fails as a whole.
// The previous snapshot stays authoritative; callers should retry later.
var ErrRefreshFailed = errors.New("cache refresh failed")

// Loader supplies tenant data for cache refreshes.
type Loader interface {
	// TenantIDs returns every known tenant id.
	TenantIDs(ctx context.Context) ([]string, error)

	// GatedTenantIDs returns tenants to exclude from refresh.
	GatedTenantIDs(ctx context.Context) ([]string, error)

	// LoadTenant returns the tenant's enabled team ids, its service API
	// key, and its bot server URL and token. cachedKey is the raw key the
	// cache already holds for the tenant, or "" — when empty the loader
	// must issue a fresh key.
	LoadTenant(ctx context.Context, tenantID, cachedKey string) (teamIDs []string, apiKey, serverURL, botToken string, err error)
}

// TenantBot is one connectable tenant: both server URL and bot token present.
type TenantBot struct {
	TenantID  string
	ServerURL string
	BotToken  string
}

// snapshot holds the four routing maps. A snapshot is immutable after
// publication; RefreshAll builds a complete replacement before swapping it
// in, so readers never observe a mix of two cycles.
type snapshot struct {
	teamTenants map[string]string // team_id -> tenant_id
	apiKeys     map[string]string // tenant_id -> raw API key
	serverURLs  map[string]string // tenant_id -> server URL
	botTokens   map[string]string // tenant_id -> bot token
}

func emptySnapshot() *snapshot {
	return &snapshot{
		teamTenants: make(map[string]string),
		apiKeys:     make(map[string]string),
		serverURLs:  make(map[string]string),
		botTokens:   make(map[string]string),
	}
}

// RoutingCache caches team->tenant mappings and tenant credentials.
// Refreshed on startup, periodically, and when a team registers.
type RoutingCache struct {
	loader Loader
	logger *slog.Logger

	mu          sync.RWMutex
	snap        *snapshot
	initialized bool
}

// New creates an empty cache backed by the given loader.
func New(loader Loader) *RoutingCache {
	return &RoutingCache{
		loader: loader,
		logger: slog.Default().With("component", "routing-cache"),
		snap:   emptySnapshot(),
	}
}

// Initialized reports whether at least one full refresh has completed.
func (c *RoutingCache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// RefreshAll rebuilds the routing maps from every non-gated tenant.
// A tenant that fails to load is skipped; only a failure of the cycle
// itself returns an error, and then the previous snapshot is retained.
func (c *RoutingCache) RefreshAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("starting routing cache refresh")

	next, err := c.buildSnapshot(ctx, c.snap)
	if err != nil {
		c.logger.Error("routing cache refresh failed", "error", err)
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	c.snap = next
	c.initialized = true

	c.logger.Info("routing cache refresh complete",
		"teams", len(next.teamTenants),
		"tenants", len(next.apiKeys),
	)
	return nil
}

// buildSnapshot assembles a complete replacement snapshot. prev is consulted
// only for raw API keys the new cycle can reuse. Must be called with mu held.
func (c *RoutingCache) buildSnapshot(ctx context.Context, prev *snapshot) (*snapshot, error) {
	gatedIDs, err := c.loader.GatedTenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gated tenants: %w", err)
	}
	gated := make(map[string]bool, len(gatedIDs))
	for _, id := range gatedIDs {
		gated[id] = true
	}

	tenantIDs, err := c.loader.TenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tenant ids: %w", err)
	}

	next := emptySnapshot()
	for _, tenantID := range tenantIDs {
		if gated[tenantID] {
			continue
		}

		teamIDs, apiKey, serverURL, botToken, err := c.loader.LoadTenant(ctx, tenantID, prev.apiKeys[tenantID])
		if err != nil {
			c.logger.Warn("failed to refresh tenant", "tenant_id", tenantID, "error", err)
			continue
		}
		if len(teamIDs) == 0 {
			c.logger.Debug("no teams found for tenant", "tenant_id", tenantID)
			continue
		}
		if apiKey == "" {
			c.logger.Warn("service API key missing for tenant with registered teams, skipping this cycle",
				"tenant_id", tenantID)
			continue
		}

		for _, teamID := range teamIDs {
			next.teamTenants[teamID] = tenantID
		}
		next.apiKeys[tenantID] = apiKey
		if serverURL != "" {
			next.serverURLs[tenantID] = serverURL
		}
		if botToken != "" {
			next.botTokens[tenantID] = botToken
		}
	}
	return next, nil
}

// RefreshTeam merges a single team and its tenant's credentials into the
// current snapshot, used right after a registration completes so the team
// does not wait for the next periodic cycle.
func (c *RoutingCache) RefreshTeam(ctx context.Context, teamID, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("refreshing cache for team", "team_id", teamID, "tenant_id", tenantID)

	teamIDs, apiKey, serverURL, botToken, err := c.loader.LoadTenant(ctx, tenantID, c.snap.apiKeys[tenantID])
	if err != nil {
		return fmt.Errorf("loading tenant %s: %w", tenantID, err)
	}

	found := false
	for _, id := range teamIDs {
		if id == teamID {
			found = true
			break
		}
	}
	if !found {
		c.logger.Warn("team not found or disabled", "team_id", teamID)
		return nil
	}

	// Merge into a copied snapshot so concurrent readers keep a consistent view.
	next := c.snap.clone()
	next.teamTenants[teamID] = tenantID
	if apiKey != "" {
		next.apiKeys[tenantID] = apiKey
	}
	if serverURL != "" {
		next.serverURLs[tenantID] = serverURL
	}
	if botToken != "" {
		next.botTokens[tenantID] = botToken
	}
	c.snap = next

	c.logger.Info("cache updated for team", "team_id", teamID)
	return nil
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		teamTenants: make(map[string]string, len(s.teamTenants)),
		apiKeys:     make(map[string]string, len(s.apiKeys)),
		serverURLs:  make(map[string]string, len(s.serverURLs)),
		botTokens:   make(map[string]string, len(s.botTokens)),
	}
	for k, v := range s.teamTenants {
		next.teamTenants[k] = v
	}
	for k, v := range s.apiKeys {
		next.apiKeys[k] = v
	}
	for k, v := range s.serverURLs {
		next.serverURLs[k] = v
	}
	for k, v := range s.botTokens {
		next.botTokens[k] = v
	}
	return next
}

// Tenant returns the tenant id for a team, or "" when unknown.
func (c *RoutingCache) Tenant(teamID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.teamTenants[teamID]
}

// APIKey returns the tenant's raw service API key, or "".
func (c *RoutingCache) APIKey(tenantID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.apiKeys[tenantID]
}

// ServerURL returns the tenant's Mattermost server URL, or "".
func (c *RoutingCache) ServerURL(tenantID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.serverURLs[tenantID]
}

// BotToken returns the tenant's bot token, or "".
func (c *RoutingCache) BotToken(tenantID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.botTokens[tenantID]
}

// AllTeamIDs returns every cached team id.
func (c *RoutingCache) AllTeamIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.snap.teamTenants))
	for id := range c.snap.teamTenants {
		ids = append(ids, id)
	}
	return ids
}

// TenantsWithBots returns tenants that have both a server URL and a bot
// token; tenants present in only one of the two maps are excluded.
func (c *RoutingCache) TenantsWithBots() []TenantBot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]TenantBot, 0, len(c.snap.botTokens))
	for tenantID, botToken := range c.snap.botTokens {
		serverURL := c.snap.serverURLs[tenantID]
		if serverURL == "" || botToken == "" {
			continue
		}
		result = append(result, TenantBot{
			TenantID:  tenantID,
			ServerURL: serverURL,
			BotToken:  botToken,
		})
	}
	return result
}

// RemoveTeam drops a single team from the routing map.
func (c *RoutingCache) RemoveTeam(teamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.clone()
	delete(next.teamTenants, teamID)
	c.snap = next
}

// Clear drops every cached entry.
func (c *RoutingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = emptySnapshot()
	c.initialized = false
}
