// ABOUTME: Tests for channel config CRUD and the sync diff
// ABOUTME: Covers defaults for new channels, joined lookup, and add/remove/update counts

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// setupTeam creates a tenant plus a registered team config and returns it.
func setupTeam(t *testing.T, store *SQLiteStore, tenantID, teamID string) *TeamConfig {
	t.Helper()
	ctx := context.Background()

	mustCreateTenant(t, store, tenantID)
	cfg, err := store.CreateTeamConfig(ctx, tenantID, "mattermost_"+tenantID+"."+teamID)
	if err != nil {
		t.Fatalf("CreateTeamConfig failed: %v", err)
	}
	if err := store.RegisterTeam(ctx, cfg.ID, teamID, "Team "+teamID, time.Now()); err != nil {
		t.Fatalf("RegisterTeam failed: %v", err)
	}
	return cfg
}

func TestCreateChannelConfig_Defaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	cfg, err := store.CreateChannelConfig(ctx, team.ID, ChannelView{
		ChannelID:   "ch1",
		ChannelName: "general",
		ChannelType: "O",
	})
	if err != nil {
		t.Fatalf("CreateChannelConfig failed: %v", err)
	}

	if cfg.Enabled {
		t.Error("new channels must start disabled")
	}
	if !cfg.RequireBotInvocation {
		t.Error("new channels must require bot invocation")
	}
	if cfg.ThreadOnlyMode {
		t.Error("new channels must not be thread-only")
	}
}

func TestCreateChannelConfig_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	view := ChannelView{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"}
	if _, err := store.CreateChannelConfig(ctx, team.ID, view); err != nil {
		t.Fatalf("CreateChannelConfig failed: %v", err)
	}
	if _, err := store.CreateChannelConfig(ctx, team.ID, view); !errors.Is(err, ErrDuplicateChannel) {
		t.Errorf("expected ErrDuplicateChannel, got %v", err)
	}
}

func TestGetChannelConfig_JoinsThroughTeam(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	if _, err := store.CreateChannelConfig(ctx, team.ID, ChannelView{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"}); err != nil {
		t.Fatalf("CreateChannelConfig failed: %v", err)
	}

	got, err := store.GetChannelConfig(ctx, "tenant-a", "team-1", "ch1")
	if err != nil {
		t.Fatalf("GetChannelConfig failed: %v", err)
	}
	if got.ChannelName != "general" {
		t.Errorf("ChannelName mismatch: %q", got.ChannelName)
	}

	// Lookup with another tenant's ids misses
	if _, err := store.GetChannelConfig(ctx, "tenant-b", "team-1", "ch1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong tenant, got %v", err)
	}
}

func TestUpdateChannelConfig(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	cfg, err := store.CreateChannelConfig(ctx, team.ID, ChannelView{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"})
	if err != nil {
		t.Fatalf("CreateChannelConfig failed: %v", err)
	}

	persona := int64(7)
	cfg.Enabled = true
	cfg.RequireBotInvocation = false
	cfg.ThreadOnlyMode = true
	cfg.PersonaOverrideID = &persona
	if err := store.UpdateChannelConfig(ctx, cfg); err != nil {
		t.Fatalf("UpdateChannelConfig failed: %v", err)
	}

	got, err := store.GetChannelConfig(ctx, "tenant-a", "team-1", "ch1")
	if err != nil {
		t.Fatalf("GetChannelConfig failed: %v", err)
	}
	if !got.Enabled || got.RequireBotInvocation || !got.ThreadOnlyMode {
		t.Errorf("flags not persisted: %+v", got)
	}
	if got.PersonaOverrideID == nil || *got.PersonaOverrideID != 7 {
		t.Errorf("PersonaOverrideID mismatch: %v", got.PersonaOverrideID)
	}
}

func TestBulkCreateChannelConfigs_SkipsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	if _, err := store.CreateChannelConfig(ctx, team.ID, ChannelView{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"}); err != nil {
		t.Fatalf("CreateChannelConfig failed: %v", err)
	}

	created, err := store.BulkCreateChannelConfigs(ctx, team.ID, []ChannelView{
		{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"},
		{ChannelID: "ch2", ChannelName: "random", ChannelType: "O"},
		{ChannelID: "ch3", ChannelName: "private", ChannelType: "P"},
	})
	if err != nil {
		t.Fatalf("BulkCreateChannelConfigs failed: %v", err)
	}
	if created != 2 {
		t.Errorf("expected 2 created, got %d", created)
	}
}

func TestSyncChannelConfigs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	// Seed: ch1 stays, ch2 gets renamed, ch3 vanishes
	for _, view := range []ChannelView{
		{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"},
		{ChannelID: "ch2", ChannelName: "old-name", ChannelType: "O"},
		{ChannelID: "ch3", ChannelName: "doomed", ChannelType: "O"},
	} {
		if _, err := store.CreateChannelConfig(ctx, team.ID, view); err != nil {
			t.Fatalf("CreateChannelConfig failed: %v", err)
		}
	}

	// Mark ch2 enabled to verify settings survive the sync
	ch2, err := store.GetChannelConfig(ctx, "tenant-a", "team-1", "ch2")
	if err != nil {
		t.Fatalf("GetChannelConfig failed: %v", err)
	}
	ch2.Enabled = true
	if err := store.UpdateChannelConfig(ctx, ch2); err != nil {
		t.Fatalf("UpdateChannelConfig failed: %v", err)
	}

	added, removed, updated, err := store.SyncChannelConfigs(ctx, team.ID, []ChannelView{
		{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"},
		{ChannelID: "ch2", ChannelName: "new-name", ChannelType: "O"},
		{ChannelID: "ch4", ChannelName: "fresh", ChannelType: "P"},
	})
	if err != nil {
		t.Fatalf("SyncChannelConfigs failed: %v", err)
	}

	if added != 1 {
		t.Errorf("added: got %d, want 1", added)
	}
	if removed != 1 {
		t.Errorf("removed: got %d, want 1", removed)
	}
	if updated != 1 {
		t.Errorf("updated: got %d, want 1", updated)
	}

	// Rename applied without losing the enabled flag
	got, err := store.GetChannelConfig(ctx, "tenant-a", "team-1", "ch2")
	if err != nil {
		t.Fatalf("GetChannelConfig failed: %v", err)
	}
	if got.ChannelName != "new-name" {
		t.Errorf("rename not applied: %q", got.ChannelName)
	}
	if !got.Enabled {
		t.Error("enabled flag lost during sync")
	}

	// Vanished channel deleted, new channel present and disabled
	if _, err := store.GetChannelConfig(ctx, "tenant-a", "team-1", "ch3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ch3 to be removed, got %v", err)
	}
	ch4, err := store.GetChannelConfig(ctx, "tenant-a", "team-1", "ch4")
	if err != nil {
		t.Fatalf("GetChannelConfig failed: %v", err)
	}
	if ch4.Enabled {
		t.Error("synced-in channel must start disabled")
	}
}

func TestSyncChannelConfigs_NoChanges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	team := setupTeam(t, store, "tenant-a", "team-1")

	views := []ChannelView{{ChannelID: "ch1", ChannelName: "general", ChannelType: "O"}}
	if _, err := store.CreateChannelConfig(ctx, team.ID, views[0]); err != nil {
		t.Fatalf("CreateChannelConfig failed: %v", err)
	}

	added, removed, updated, err := store.SyncChannelConfigs(ctx, team.ID, views)
	if err != nil {
		t.Fatalf("SyncChannelConfigs failed: %v", err)
	}
	if added != 0 || removed != 0 || updated != 0 {
		t.Errorf("expected no changes, got added=%d removed=%d updated=%d", added, removed, updated)
	}
}
