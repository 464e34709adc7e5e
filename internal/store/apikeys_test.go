// ABOUTME: Tests for service API key issuance
// ABOUTME: Covers raw-key format, hash-only persistence, and in-place regeneration

package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGetOrCreateServiceAPIKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustCreateTenant(t, store, "tenant-a")

	raw, err := store.GetOrCreateServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("GetOrCreateServiceAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(raw, "mmb_tenant-a_") {
		t.Errorf("unexpected key format: %q", raw)
	}

	stored, err := store.GetServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("GetServiceAPIKey failed: %v", err)
	}
	if stored.HashedKey == raw {
		t.Error("raw key must not be persisted")
	}
	if stored.HashedKey != hashAPIKey(raw) {
		t.Error("stored hash does not match the issued key")
	}
	if !strings.HasPrefix(stored.DisplayKey, raw[:4]) || !strings.HasSuffix(stored.DisplayKey, raw[len(raw)-4:]) {
		t.Errorf("display fragment does not match key: %q", stored.DisplayKey)
	}
}

func TestGetOrCreateServiceAPIKey_RegeneratesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustCreateTenant(t, store, "tenant-a")

	first, err := store.GetOrCreateServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("GetOrCreateServiceAPIKey failed: %v", err)
	}
	second, err := store.GetOrCreateServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("GetOrCreateServiceAPIKey (second) failed: %v", err)
	}

	// The raw value is never stored, so a second request rotates in place
	if first == second {
		t.Error("expected a fresh key on regeneration")
	}

	stored, err := store.GetServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("GetServiceAPIKey failed: %v", err)
	}
	if stored.HashedKey != hashAPIKey(second) {
		t.Error("stored hash should match the latest key")
	}
}

func TestDeleteServiceAPIKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustCreateTenant(t, store, "tenant-a")

	if _, err := store.GetOrCreateServiceAPIKey(ctx, "tenant-a"); err != nil {
		t.Fatalf("GetOrCreateServiceAPIKey failed: %v", err)
	}

	deleted, err := store.DeleteServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("DeleteServiceAPIKey failed: %v", err)
	}
	if !deleted {
		t.Error("expected deleted=true")
	}

	if _, err := store.GetServiceAPIKey(ctx, "tenant-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	deleted, err = store.DeleteServiceAPIKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("DeleteServiceAPIKey (second) failed: %v", err)
	}
	if deleted {
		t.Error("expected deleted=false on second delete")
	}
}
