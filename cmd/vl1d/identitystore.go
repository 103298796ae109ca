package main

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// fileIdentityStore persists a node's identity as a single hex-encoded
// public key line on disk. It implements vl1.NodeStorage.
type fileIdentityStore struct {
	path string
}

func newFileIdentityStore(path string) *fileIdentityStore {
	return &fileIdentityStore{path: path}
}

// LoadNodeIdentity reads the identity file. A missing file is reported as
// (Identity{}, false), the shape vl1.NewNode expects when it should
// auto-generate instead.
func (s *fileIdentityStore) LoadNodeIdentity() (vl1.Identity, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return vl1.Identity{}, false
	}

	raw = trimNewline(raw)
	pub, err := hex.DecodeString(string(raw))
	if err != nil || len(pub) != 32 {
		return vl1.Identity{}, false
	}

	var key [32]byte
	copy(key[:], pub)
	return vl1.IdentityFromPublicKey(key), true
}

// SaveNodeIdentity writes id's public key to the identity file, creating
// its parent directory if needed. Errors are swallowed per the
// vl1.NodeStorage contract (SaveNodeIdentity returns nothing); a failed
// save just means the next restart regenerates a new identity.
func (s *fileIdentityStore) SaveNodeIdentity(id vl1.Identity) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return
	}
	pub := id.PublicKey()
	_ = os.WriteFile(s.path, []byte(hex.EncodeToString(pub[:])+"\n"), 0o600)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
