package memory

import (
	"context"
	"testing"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestMemoryStore_Snapshot(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.Set(ctx, "a", "1")
	store.Set(ctx, "b", "2")

	snap := store.Snapshot()
	if len(snap) != 2 || snap["a"] != "1" || snap["b"] != "2" {
		t.Errorf("unexpected snapshot: %v", snap)
	}

	snap["a"] = "changed"
	if v, _, _ := store.Get(ctx, "a"); v != "1" {
		t.Error("snapshot aliases store state")
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := New()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Set(context.Background(), "k", "v"); err == nil {
		t.Error("expected error writing to closed store")
	}
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Error("expected error reading from closed store")
	}
}
