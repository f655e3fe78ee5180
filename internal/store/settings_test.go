package store

import (
	"context"
	"testing"

	"github.com/dukerupert/recoverypulse/internal/database"
)

func setupSettingsTestDB(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsStore(db)
}

func TestSettingsGetAbsent(t *testing.T) {
	ss := setupSettingsTestDB(t)

	val, ok, err := ss.Get(context.Background(), "nonexistent_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Errorf("expected absent key, got %q", val)
	}
}

func TestSettingsSetGetRemove(t *testing.T) {
	ss := setupSettingsTestDB(t)
	ctx := context.Background()

	if err := ss.Set(ctx, "first_launch_at", "2026-02-01T08:00:00Z"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Overwrite
	if err := ss.Set(ctx, "first_launch_at", "2026-01-01T08:00:00Z"); err != nil {
		t.Fatalf("set again: %v", err)
	}

	val, ok, err := ss.Get(ctx, "first_launch_at")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || val != "2026-01-01T08:00:00Z" {
		t.Errorf("first_launch_at = %q (ok=%v), want %q", val, ok, "2026-01-01T08:00:00Z")
	}

	if err := ss.Remove(ctx, "first_launch_at"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := ss.Get(ctx, "first_launch_at"); ok {
		t.Error("expected key removed")
	}

	// Removing an absent key is not an error
	if err := ss.Remove(ctx, "first_launch_at"); err != nil {
		t.Errorf("remove absent: %v", err)
	}
}

func TestSettingsGetAll(t *testing.T) {
	ss := setupSettingsTestDB(t)
	ctx := context.Background()

	ss.Set(ctx, "a", "1")
	ss.Set(ctx, "b", "2")

	all, err := ss.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 || all["a"] != "1" || all["b"] != "2" {
		t.Errorf("all = %v", all)
	}
}
