// Copyright 2024-2026 Aiku AI

package gateway

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore failed: %v", err)
	}

	if store.HasCredentials() {
		t.Fatal("fresh store should have no credentials")
	}
	if blob, err := store.Load(); err != nil || blob != nil {
		t.Fatalf("Load on empty store = (%v, %v), want (nil, nil)", blob, err)
	}

	want := []byte(`{"jid":"me@s.whatsapp.net"}`)
	if err := store.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !store.HasCredentials() {
		t.Fatal("expected credentials present after save")
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Load = %q, want %q", got, want)
	}
}

func TestCredentialStoreSaveOverwrites(t *testing.T) {
	t.Parallel()
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore failed: %v", err)
	}
	if err := store.Save([]byte("old")); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save([]byte("rotated")); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != "rotated" {
		t.Fatalf("Load = %q, want rotated blob", got)
	}
}

func TestCredentialStoreDeleteWipesDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewCredentialStore(dir)
	if err != nil {
		t.Fatalf("NewCredentialStore failed: %v", err)
	}
	if err := store.Save([]byte("blob")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// The protocol library keeps sibling files in the same directory; Delete
	// must take those with it.
	if err := os.WriteFile(filepath.Join(dir, "device.db"), []byte("keys"), 0o600); err != nil {
		t.Fatalf("failed to plant sibling file: %v", err)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.HasCredentials() {
		t.Fatal("expected credentials gone after delete")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("session directory should survive delete: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty session directory, got %d entries", len(entries))
	}
}

func TestCredentialStoreCreatesDirectory(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "session")
	store, err := NewCredentialStore(dir)
	if err != nil {
		t.Fatalf("NewCredentialStore failed: %v", err)
	}
	if store.Dir() != dir {
		t.Fatalf("Dir = %q, want %q", store.Dir(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected session directory created: %v", err)
	}
}
