package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// LocalCredentialStore stores credentials on the local filesystem.
// This is intended for development and testing only.
type LocalCredentialStore struct {
	baseDir string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache *Credentials
}

// NewLocalCredentialStore creates a new local filesystem-backed store.
// If baseDir is empty, it defaults to ~/.nsp-alarm-ingester/credentials.
func NewLocalCredentialStore(baseDir string, logger *slog.Logger) (*LocalCredentialStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".nsp-alarm-ingester", "credentials")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}

	logger.Info("using local credential store", "path", baseDir)

	return &LocalCredentialStore{baseDir: baseDir, logger: logger}, nil
}

func (cs *LocalCredentialStore) path() string {
	return filepath.Join(cs.baseDir, DefaultCredentialName+".json")
}

// GetCredentials loads the stored credential bundle, or nil if none exists.
func (cs *LocalCredentialStore) GetCredentials(ctx context.Context) (*Credentials, error) {
	cs.mu.RLock()
	if cs.cache != nil {
		defer cs.mu.RUnlock()
		return cs.cache, nil
	}
	cs.mu.RUnlock()

	data, err := os.ReadFile(cs.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	cs.mu.Lock()
	cs.cache = &creds
	cs.mu.Unlock()
	return &creds, nil
}

// PutCredentials writes the credential bundle to disk with restrictive
// permissions.
func (cs *LocalCredentialStore) PutCredentials(ctx context.Context, creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.WriteFile(cs.path(), data, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	cs.mu.Lock()
	cs.cache = &creds
	cs.mu.Unlock()
	return nil
}

// Close releases any resources.
func (cs *LocalCredentialStore) Close() error {
	cs.mu.Lock()
	cs.cache = nil
	cs.mu.Unlock()
	return nil
}
