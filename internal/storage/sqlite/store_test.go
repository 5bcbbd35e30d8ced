package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore_SetGet(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := store.Set(ctx, "lg_mode_state", "Active"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "lg_mode_state")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got != "Active" {
		t.Errorf("Get() = %q, %v, want Active, true", got, ok)
	}
}

func TestSQLiteStore_Upsert(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, v := range []string{"first", "second"} {
		if err := store.Set(ctx, "key", v); err != nil {
			t.Fatalf("Set(%q) error = %v", v, err)
		}
	}

	got, _, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "second" {
		t.Errorf("Get() = %q, want second", got)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "key"); ok {
		t.Error("expected key to be gone")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launchgate.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Set(ctx, "lg_launched_flag", "true"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "lg_launched_flag")
	if err != nil || !ok || got != "true" {
		t.Errorf("Get() after reopen = %q, %v, %v", got, ok, err)
	}
}
