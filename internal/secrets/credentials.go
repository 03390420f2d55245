// Package secrets provides secure storage and retrieval of the NSP
// gateway credentials (account username/password, bus keystore password).
//
// The primary implementation uses 1Password Connect for production
// environments, with a local file-based fallback for development.
package secrets

import (
	"context"
	"time"
)

// Credentials bundles the three fields configuration requires at
// startup: the NSP account used for client-credentials auth, and the
// bus keystore password.
type Credentials struct {
	Username         string    `json:"username"`
	Password         string    `json:"password"`
	KeystorePassword string    `json:"keystore_password"`
	RotatedAt        *time.Time `json:"rotated_at,omitempty"`
}

// CredentialStore provides secure storage and retrieval of NSP credentials.
type CredentialStore interface {
	// GetCredentials returns the stored NSP credential bundle. Returns
	// nil if none has been provisioned yet.
	GetCredentials(ctx context.Context) (*Credentials, error)

	// PutCredentials stores (creating or replacing) the credential bundle.
	PutCredentials(ctx context.Context, creds Credentials) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultCredentialName is the vault item / local file name credentials
// are stored under.
const DefaultCredentialName = "nsp-alarm-ingester-credentials"
