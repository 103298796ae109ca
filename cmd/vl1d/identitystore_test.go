package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

func TestFileIdentityStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "identity")
	store := newFileIdentityStore(path)

	if _, ok := store.LoadNodeIdentity(); ok {
		t.Fatal("LoadNodeIdentity on missing file reported ok=true")
	}

	id := vl1.GenerateIdentity()
	store.SaveNodeIdentity(id)

	got, ok := store.LoadNodeIdentity()
	if !ok {
		t.Fatal("LoadNodeIdentity after save reported ok=false")
	}
	if !got.Equal(id) {
		t.Errorf("loaded identity %s, want %s", got, id)
	}
}

func TestFileIdentityStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "identity")
	store := newFileIdentityStore(path)

	// Write garbage that isn't valid hex.
	if err := os.WriteFile(path, []byte("not-hex-data"), 0o600); err != nil {
		t.Fatalf("write corrupt identity file: %v", err)
	}

	if _, ok := store.LoadNodeIdentity(); ok {
		t.Error("LoadNodeIdentity on corrupt file reported ok=true")
	}
}
