// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const credentialFile = "creds.json"

// CredentialStore persists session authentication material under a single
// directory. The blob itself is opaque; the protocol library keeps its own
// key material in the same directory, so Delete wipes the directory contents
// wholesale and a deleted store forces a full re-pairing.
type CredentialStore struct {
	dir string
}

// NewCredentialStore creates the session directory if needed.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &CredentialStore{dir: dir}, nil
}

// Dir returns the session directory path.
func (c *CredentialStore) Dir() string {
	return c.dir
}

// Load returns the stored credential blob, or (nil, nil) when absent.
func (c *CredentialStore) Load() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, credentialFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return data, nil
}

// HasCredentials reports whether a credential blob is present.
func (c *CredentialStore) HasCredentials() bool {
	_, err := os.Stat(filepath.Join(c.dir, credentialFile))
	return err == nil
}

// Save durably writes a rotated credential blob. Losing a rotated credential
// forces a full re-pairing, so the write is synced to disk before returning.
func (c *CredentialStore) Save(blob []byte) error {
	path := filepath.Join(c.dir, credentialFile)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}
	if _, err = f.Write(blob); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}

// Delete removes everything in the session directory. The directory itself
// is kept so a later pairing can reuse it.
func (c *CredentialStore) Delete() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to list session directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
	}
	return nil
}
