package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

// OnePasswordCredentialStore stores NSP credentials in 1Password using
// the Connect API.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//   - OP_VAULT_ID: UUID of the vault to store credentials in
type OnePasswordCredentialStore struct {
	client  connect.Client
	vaultID string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache *Credentials
}

// OnePasswordConfig holds configuration for 1Password Connect.
type OnePasswordConfig struct {
	Host    string // OP_CONNECT_HOST
	Token   string // OP_CONNECT_TOKEN
	VaultID string // OP_VAULT_ID
}

// NewOnePasswordCredentialStore creates a new 1Password-backed credential store.
func NewOnePasswordCredentialStore(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordCredentialStore, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.VaultID == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host, token, and vault_id are required")
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "nsp-alarm-ingester")

	return &OnePasswordCredentialStore{
		client:  client,
		vaultID: cfg.VaultID,
		logger:  logger,
	}, nil
}

// GetCredentials retrieves the stored credential bundle, or nil if none
// has been provisioned yet.
func (cs *OnePasswordCredentialStore) GetCredentials(ctx context.Context) (*Credentials, error) {
	cs.mu.RLock()
	if cs.cache != nil {
		defer cs.mu.RUnlock()
		return cs.cache, nil
	}
	cs.mu.RUnlock()

	items, err := cs.client.GetItemsByTitle(DefaultCredentialName, cs.vaultID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	item, err := cs.client.GetItem(items[0].ID, cs.vaultID)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	creds, err := itemToCredentials(item)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	cs.cache = creds
	cs.mu.Unlock()
	return creds, nil
}

// PutCredentials creates or updates the stored credential bundle.
func (cs *OnePasswordCredentialStore) PutCredentials(ctx context.Context, creds Credentials) error {
	items, err := cs.client.GetItemsByTitle(DefaultCredentialName, cs.vaultID)
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("finding item: %w", err)
	}

	item := credentialsToItem(creds, cs.vaultID)

	if len(items) == 0 {
		_, err = cs.client.CreateItem(item, cs.vaultID)
	} else {
		item.ID = items[0].ID
		_, err = cs.client.UpdateItem(item, cs.vaultID)
	}
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}

	cs.mu.Lock()
	cs.cache = &creds
	cs.mu.Unlock()
	return nil
}

// Close releases any resources.
func (cs *OnePasswordCredentialStore) Close() error {
	cs.mu.Lock()
	cs.cache = nil
	cs.mu.Unlock()
	return nil
}

func credentialsToItem(creds Credentials, vaultID string) *onepassword.Item {
	metadata := map[string]any{}
	if creds.RotatedAt != nil {
		metadata["rotated_at"] = creds.RotatedAt.Format(time.RFC3339)
	}
	metadataJSON, _ := json.Marshal(metadata)

	return &onepassword.Item{
		Title:    DefaultCredentialName,
		Category: onepassword.Login,
		Vault:    onepassword.ItemVault{ID: vaultID},
		Fields: []*onepassword.ItemField{
			{ID: "username", Label: "username", Type: "STRING", Value: creds.Username},
			{ID: "password", Label: "password", Type: "CONCEALED", Value: creds.Password},
			{ID: "keystore_password", Label: "keystore password", Type: "CONCEALED", Value: creds.KeystorePassword},
			{ID: "notesPlain", Label: "notesPlain", Type: "STRING", Value: string(metadataJSON), Purpose: "NOTES"},
		},
	}
}

func itemToCredentials(item *onepassword.Item) (*Credentials, error) {
	creds := &Credentials{}
	for _, field := range item.Fields {
		switch field.ID {
		case "username":
			creds.Username = field.Value
		case "password":
			creds.Password = field.Value
		case "keystore_password":
			creds.KeystorePassword = field.Value
		case "notesPlain":
			var metadata map[string]any
			if err := json.Unmarshal([]byte(field.Value), &metadata); err == nil {
				if rat, ok := metadata["rotated_at"].(string); ok {
					if t, err := time.Parse(time.RFC3339, rat); err == nil {
						creds.RotatedAt = &t
					}
				}
			}
		}
	}
	return creds, nil
}

// isNotFoundError checks if an error is a "not found" error from 1Password.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "not found") || strings.Contains(errStr, "404") || strings.Contains(errStr, "no items")
}
