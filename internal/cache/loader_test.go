// ABOUTME: Tests for the store-backed cache loader
// ABOUTME: Covers enabled-team filtering and lazy key issuance against a real store

package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dot-app/mattermost-bot/internal/store"
)

func newLoaderFixture(t *testing.T) (*StoreLoader, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewStoreLoader(st), st
}

func TestStoreLoader_LoadTenant(t *testing.T) {
	loader, st := newLoaderFixture(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTenant(ctx, "tenant-a"))
	require.NoError(t, st.SetBotConfig(ctx, &store.BotConfig{
		TenantID:  "tenant-a",
		ServerURL: "https://mm.example.com",
		BotToken:  "tok",
	}))

	registered, err := st.CreateTeamConfig(ctx, "tenant-a", "mattermost_tenant-a.k1")
	require.NoError(t, err)
	require.NoError(t, st.RegisterTeam(ctx, registered.ID, "team-1", "Team 1", time.Now()))

	// Registered but disabled: excluded
	disabled, err := st.CreateTeamConfig(ctx, "tenant-a", "mattermost_tenant-a.k2")
	require.NoError(t, err)
	require.NoError(t, st.RegisterTeam(ctx, disabled.ID, "team-2", "Team 2", time.Now()))
	require.NoError(t, st.UpdateTeamConfig(ctx, disabled.ID, false, nil))

	// Unredeemed key: no team id yet
	_, err = st.CreateTeamConfig(ctx, "tenant-a", "mattermost_tenant-a.k3")
	require.NoError(t, err)

	teamIDs, apiKey, serverURL, botToken, err := loader.LoadTenant(ctx, "tenant-a", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"team-1"}, teamIDs)
	assert.NotEmpty(t, apiKey)
	assert.Equal(t, "https://mm.example.com", serverURL)
	assert.Equal(t, "tok", botToken)
}

func TestStoreLoader_ReusesCachedKey(t *testing.T) {
	loader, st := newLoaderFixture(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTenant(ctx, "tenant-a"))
	cfg, err := st.CreateTeamConfig(ctx, "tenant-a", "mattermost_tenant-a.k1")
	require.NoError(t, err)
	require.NoError(t, st.RegisterTeam(ctx, cfg.ID, "team-1", "Team 1", time.Now()))

	_, apiKey, _, _, err := loader.LoadTenant(ctx, "tenant-a", "cached-raw-key")
	require.NoError(t, err)

	// A cached raw key is passed through untouched, no rotation
	assert.Equal(t, "cached-raw-key", apiKey)
	_, err = st.GetServiceAPIKey(ctx, "tenant-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreLoader_NoTeamsNoKey(t *testing.T) {
	loader, st := newLoaderFixture(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTenant(ctx, "tenant-a"))

	teamIDs, apiKey, _, _, err := loader.LoadTenant(ctx, "tenant-a", "")
	require.NoError(t, err)

	// No registered teams: no key gets issued
	assert.Empty(t, teamIDs)
	assert.Empty(t, apiKey)
	_, err = st.GetServiceAPIKey(ctx, "tenant-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
